// Command ldm7-upstream runs C7, the upstream session servant: it accepts
// subscriber connections on a TCP listener and negotiates each one's
// multicast assignment, spawning per-feed multicast-sender processes via
// C8 as subscribers arrive. Grounded on fw/cmd/cmd.go's cobra-plus-signal
// shape.
package main

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Unidata/LDM-sub009/internal/adminui"
	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/sendersup"
	"github.com/Unidata/LDM-sub009/internal/toolutils"
	"github.com/Unidata/LDM-sub009/internal/upstream"
)

var cfg = config.DefaultUpstream()

var cmdUpstream = &cobra.Command{
	Use:     "ldm7-upstream CONFIG-FILE",
	Short:   "LDM-7 upstream session servant",
	Version: "LDM-sub009",
	Args:    cobra.ExactArgs(1),
	Run:     run,
}

func init() {
	cmdUpstream.Flags().StringVar(&cfg.CpuProfile, "cpu-profile", "", "Write CPU profile to file")
	cmdUpstream.Flags().StringVar(&cfg.MemProfile, "mem-profile", "", "Write memory profile to file")
	cmdUpstream.Flags().StringVar(&cfg.BlockProfile, "block-profile", "", "Write block profile to file")
}

const senderShutdownTimeout = 10 * time.Second

func run(cmd *cobra.Command, args []string) {
	configFile := args[0]
	cfg.BaseDir = filepath.Dir(configFile)

	if err := toolutils.ReadYaml(cfg, configFile); err != nil {
		ldmlog.Log.Fatal("ldm7-upstream", "read config failed", "err", err)
	}

	level, err := ldmlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		ldmlog.Log.Fatal("ldm7-upstream", "bad log-level", "err", err)
	}
	ldmlog.Log.SetLevel(level)

	profiler := NewProfiler(cfg)
	if err := profiler.Start(); err != nil {
		ldmlog.Log.Fatal("ldm7-upstream", "profiler start failed", "err", err)
	}

	queue, err := productqueue.NewBadgerQueue(cfg.Resolve(cfg.DataDir))
	if err != nil {
		ldmlog.Log.Fatal("ldm7-upstream", "open product queue failed", "err", err)
	}
	defer queue.Close()

	sup := sendersup.New(cfg.SenderBin, cfg.AuthKey)
	servant := upstream.New(*cfg, queue, sup)

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		ldmlog.Log.Fatal("ldm7-upstream", "listen failed", "addr", cfg.Listen, "err", err)
	}

	var hub *adminui.Hub
	if cfg.AdminListen != "" {
		hub = adminui.New(cfg.AdminListen)
		go func() {
			if err := hub.Run(); err != nil {
				ldmlog.Log.Warn("ldm7-upstream", "admin UI server exited", "err", err)
			}
		}()
		servant.Notify = func(event, feed, detail string) {
			hub.Publish(adminui.Event{
				Time:      time.Now(),
				Component: "upstream-servant",
				Message:   event,
				Fields:    map[string]any{"feed": feed, "detail": detail},
			})
		}
	}

	ldmlog.Log.Info("ldm7-upstream", "servant listening", "addr", cfg.Listen, "feeds", len(cfg.Feeds))

	done := make(chan error, 1)
	go func() { done <- servant.Serve(l) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		ldmlog.Log.Info("ldm7-upstream", "received signal, shutting down", "signal", sig)
		l.Close()
		<-done
	case err := <-done:
		if err != nil {
			ldmlog.Log.Warn("ldm7-upstream", "servant exited", "err", err)
		}
	}

	sup.Shutdown(senderShutdownTimeout)
	if hub != nil {
		hub.Close()
	}
	profiler.Stop()
}

func main() {
	if err := cmdUpstream.Execute(); err != nil {
		os.Exit(1)
	}
}
