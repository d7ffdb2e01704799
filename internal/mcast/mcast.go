// Package mcast implements C5, the Multicast LDM Receiver: a thin owner of
// a multicast transport instance parameterized by a group address, bound to
// a C4 notifier.
package mcast

import (
	"fmt"
	"net"

	"github.com/Unidata/LDM-sub009/internal/ldm7status"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/mcasttransport"
)

// Info is the multicast parameters a subscription reply hands the session
// controller: the group address and the local interface to join it on.
type Info struct {
	Group     net.UDPAddr
	Interface string
}

// Receiver owns one multicast transport instance for the lifetime of a
// downstream session.
type Receiver struct {
	transport *mcasttransport.MulticastReceiver
	done      chan struct{}
}

// New joins info's multicast group and prepares to dispatch decoded frames
// to sink. Call Run to start receiving.
func New(info Info, sink mcasttransport.ProductSink) (*Receiver, error) {
	t, err := mcasttransport.NewReceiver(info.Interface, &info.Group, sink)
	if err != nil {
		return nil, ldm7status.Wrap(ldm7status.MCAST, "mcast: join group failed", err)
	}
	return &Receiver{transport: t, done: make(chan struct{})}, nil
}

// String identifies this receiver in log lines.
func (r *Receiver) String() string { return "mcast-receiver" }

// Run blocks, dispatching frames, until Halt is called. It returns when the
// transport stops, closing the done channel so a concurrent Halt knows the
// receive loop has actually exited.
func (r *Receiver) Run() {
	defer close(r.done)
	ldmlog.Log.Info(r, "multicast receiver starting")
	r.transport.Run()
}

// Halt stops Run and waits for it to return. Idempotent.
func (r *Receiver) Halt() error {
	if err := r.transport.Close(); err != nil {
		return fmt.Errorf("mcast: halt: %w", err)
	}
	<-r.done
	return nil
}
