// Command ldmctl is the operator CLI for inspecting LDM-7 on-disk state:
// a (server, feed) session's persisted memory, a feed's product-index
// map, and a feed's most recently committed products, grounded on
// toolutils.StatusPrinter's "used by ldmctl status" doc comment.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Unidata/LDM-sub009/internal/feedspec"
	"github.com/Unidata/LDM-sub009/internal/pqueue"
	"github.com/Unidata/LDM-sub009/internal/prodindex"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/sessionmem"
	"github.com/Unidata/LDM-sub009/internal/signature"
	"github.com/Unidata/LDM-sub009/internal/toolutils"
)

var printer = toolutils.StatusPrinter{Writer: os.Stdout, Padding: 24}

var cmdRoot = &cobra.Command{
	Use:     "ldmctl",
	Short:   "Inspect LDM-7 on-disk session, index-map, and queue state",
	Version: "LDM-sub009",
}

var cmdStatus = &cobra.Command{
	Use:   "status LOG-DIR SERVER-ADDR FEED",
	Short: "Dump a (server, feed) session's persisted memory",
	Args:  cobra.ExactArgs(3),
	RunE:  runStatus,
}

var cmdIndexMap = &cobra.Command{
	Use:   "indexmap DATA-DIR FEED",
	Short: "Dump a feed's product-index map header",
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexMap,
}

var recentLimit int

var cmdRecent = &cobra.Command{
	Use:   "recent DATA-DIR FEED",
	Short: "List the most recently committed products for a feed",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecent,
}

func init() {
	cmdRecent.Flags().IntVar(&recentLimit, "limit", 10, "number of products to show")
	cmdRoot.AddCommand(cmdStatus, cmdIndexMap, cmdRecent)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logDir, serverAddr, feed := args[0], args[1], args[2]

	mem, err := sessionmem.Open(logDir, serverAddr, feed)
	if err != nil {
		return fmt.Errorf("ldmctl: open session memory: %w", err)
	}
	defer mem.Close()

	printer.Print("path", sessionmem.PathFor(logDir, serverAddr, feed))
	if sig, ok := mem.GetLastMcastSig(); ok {
		printer.Print("last-mcast-sig", sig)
	} else {
		printer.Print("last-mcast-sig", "(none)")
	}
	printer.Print("missed-count", mem.MissedCount())
	printer.Print("requested-count", mem.RequestedCount())
	return nil
}

func runIndexMap(cmd *cobra.Command, args []string) error {
	dataDir, feed := args[0], args[1]

	idx, err := prodindex.OpenForReading(dataDir, feed)
	if err != nil {
		return fmt.Errorf("ldmctl: open index map: %w", err)
	}
	defer idx.Close()

	count, lastIndex, lastValid := idx.Stats()
	printer.Print("feed", feed)
	printer.Print("capacity", idx.Capacity())
	printer.Print("count", count)
	if lastValid {
		printer.Print("last-index", lastIndex)
	} else {
		printer.Print("last-index", "(empty)")
	}
	return nil
}

type recentEntry struct {
	ident   string
	arrival time.Time
	size    uint32
}

func runRecent(cmd *cobra.Command, args []string) error {
	dataDir, feedName := args[0], args[1]

	feed, err := feedspec.Parse(feedName)
	if err != nil {
		feed = feedspec.Register(feedName)
	}

	queue, err := productqueue.NewBadgerQueue(dataDir)
	if err != nil {
		return fmt.Errorf("ldmctl: open product queue: %w", err)
	}
	defer queue.Close()

	window := pqueue.New[recentEntry, int64]()
	err = queue.WalkSince(feed, nil, time.Time{}, signature.Zero, func(p productqueue.Product) bool {
		e := recentEntry{ident: p.Info.Ident, arrival: p.Info.ArrivalTime, size: p.Info.Size}
		window.PushBounded(e, p.Info.ArrivalTime.UnixNano(), recentLimit)
		return true
	})
	if err != nil {
		return fmt.Errorf("ldmctl: walk queue: %w", err)
	}

	entries := window.Drain()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Printf("%s  %8d bytes  %s\n", e.arrival.Format(time.RFC3339), e.size, e.ident)
	}
	return nil
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
