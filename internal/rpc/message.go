// Package rpc implements the LDM-7 control protocol: a single TCP
// connection per subscription carrying one synchronous request/reply
// (subscribe) and seven fire-and-forget asynchronous calls in either
// direction. Rather than the source's trick of sending an RPC
// and treating a runtime timeout as "no reply expected," each procedure
// here is tagged with an explicit expects-reply flag and the caller simply
// doesn't wait when none is expected.
package rpc

import (
	"time"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/signature"
)

// McastInfo describes the multicast group a subscription was assigned.
type McastInfo struct {
	Feed       string
	ServerHost string
	ServerPort int
	GroupHost  string
	GroupPort  int
}

// SubscriptionReply is the synchronous result of Subscribe.
type SubscriptionReply struct {
	Status     ldm7status.Code
	Detail     string
	McastInfo  McastInfo
	ClientAddr string
	PrefixLen  int
	SwitchPort int
	VlanID     int
}

// BacklogSpec requests every product strictly between After (or now minus
// TimeOffset, if After is nil or not found) and Before.
type BacklogSpec struct {
	After      *signature.Signature
	Before     signature.Signature
	TimeOffset time.Duration
}

// subscribeMsg is the request payload for ProcSubscribe.
type subscribeMsg struct {
	Feed string
}

// requestProductMsg is request_product's payload: just the missed index.
type requestProductMsg struct {
	IProd prodindex.ProdIndex
}

// missedProductMsg is deliver_missed_product's payload.
type missedProductMsg struct {
	IProd prodindex.ProdIndex
	Info  productqueue.ProdInfo
	Data  []byte
}

// noSuchProductMsg is no_such_product's payload.
type noSuchProductMsg struct {
	IProd prodindex.ProdIndex
}

// backlogProductMsg is deliver_backlog_product's payload.
type backlogProductMsg struct {
	Info productqueue.ProdInfo
	Data []byte
}
