// Command mcast-sender is C8's actual per-feed sender process: spawned by
// cmd/ldm7-upstream's supervisor on first subscription, it multicasts
// products read from stdin and runs the small out-of-band authorizer
// service the servant calls to admit each subscriber's reserved address.
//
// Product insertion is external to this fabric; this binary's stand-in is a newline-delimited
// JSON feed on stdin, one object per product: {"ident":"...",
// "origin":"...","data":"base64..."}.
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/Unidata/LDM-sub009/internal/authorizer"
	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/mcastsend"
	"github.com/Unidata/LDM-sub009/internal/mcasttransport"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/sendersup"
)

const defaultIndexMapCapacity = 100_000

var flags struct {
	feed             string
	mcastGroup       string
	localAddr        string
	dataDir          string
	authorizerListen string
	authKey          string
	indexMapCapacity uint32
}

var cmdSender = &cobra.Command{
	Use:     "mcast-sender",
	Short:   "LDM-7 per-feed multicast sender",
	Version: "LDM-sub009",
	RunE:    run,
}

func init() {
	f := cmdSender.Flags()
	f.StringVar(&flags.feed, "feed", "", "feed name this sender multicasts")
	f.StringVar(&flags.mcastGroup, "mcast-group", "", "multicast group, host:port")
	f.StringVar(&flags.localAddr, "local-addr", "0.0.0.0", "local interface address to send from")
	f.StringVar(&flags.dataDir, "data-dir", "", "shared product queue and index-map directory")
	f.StringVar(&flags.authorizerListen, "authorizer-listen", "127.0.0.1:0", "authorizer control endpoint")
	f.StringVar(&flags.authKey, "auth-key", "", "shared secret authenticating the upstream servant")
	f.Uint32Var(&flags.indexMapCapacity, "index-map-capacity", defaultIndexMapCapacity, "index-map retention window")
	cmdSender.MarkFlagRequired("feed")
	cmdSender.MarkFlagRequired("mcast-group")
	cmdSender.MarkFlagRequired("data-dir")
}

type productRecord struct {
	Ident  string `json:"ident"`
	Origin string `json:"origin"`
	Data   string `json:"data"`
}

func run(cmd *cobra.Command, args []string) error {
	feed, err := feedspec.Parse(flags.feed)
	if err != nil {
		return fmt.Errorf("mcast-sender: %w", err)
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", flags.mcastGroup)
	if err != nil {
		return fmt.Errorf("mcast-sender: resolve mcast-group %q: %w", flags.mcastGroup, err)
	}

	queue, err := productqueue.NewBadgerQueue(flags.dataDir)
	if err != nil {
		return fmt.Errorf("mcast-sender: open product queue: %w", err)
	}
	defer queue.Close()

	idx, err := prodindex.OpenForWriting(flags.dataDir, flags.feed, flags.indexMapCapacity)
	if err != nil {
		return fmt.Errorf("mcast-sender: open index map: %w", err)
	}

	localAddr := &net.UDPAddr{IP: net.ParseIP(flags.localAddr)}
	transport, err := mcasttransport.NewSender(localAddr, groupAddr)
	if err != nil {
		idx.Close()
		return fmt.Errorf("mcast-sender: dial multicast group: %w", err)
	}

	sender := mcastsend.New(feed, transport, idx, queue)
	defer sender.Close()

	authSrv := authorizer.NewServer([]byte(flags.authKey), flags.feed)
	l, err := net.Listen("tcp", flags.authorizerListen)
	if err != nil {
		return fmt.Errorf("mcast-sender: listen authorizer: %w", err)
	}
	defer l.Close()

	if err := os.WriteFile(sendersup.AuthorizerAddrPath(flags.dataDir, flags.feed), []byte(l.Addr().String()), 0o644); err != nil {
		return fmt.Errorf("mcast-sender: publish authorizer address: %w", err)
	}

	go func() {
		if err := authSrv.Serve(l); err != nil {
			ldmlog.Log.Warn("mcast-sender", "authorizer server exited", "err", err)
		}
	}()

	ldmlog.Log.Info("mcast-sender", "sender ready", "feed", flags.feed, "group", flags.mcastGroup, "authorizer", l.Addr())
	return feedStdin(sender)
}

// feedStdin reads newline-delimited JSON product records from stdin and
// multicasts each one, until EOF or a fatal read error.
func feedStdin(sender *mcastsend.Sender) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec productRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			ldmlog.Log.Warn("mcast-sender", "malformed product record", "err", err)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			ldmlog.Log.Warn("mcast-sender", "malformed product data", "err", err)
			continue
		}
		iProd, err := sender.Send(data, rec.Ident, rec.Origin)
		if err != nil {
			ldmlog.Log.Warn("mcast-sender", "send failed", "ident", rec.Ident, "err", err)
			continue
		}
		ldmlog.Log.Info("mcast-sender", "sent product", "ident", rec.Ident, "iProd", iProd)
	}
	return scanner.Err()
}

func main() {
	if err := cmdSender.Execute(); err != nil {
		os.Exit(1)
	}
}
