// Command ldmd is the downstream LDM-7 daemon: it runs one Controller per
// configured (server, feed) subscription, grounded on fw/cmd/cmd.go's
// cobra-command-plus-signal-handler shape.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Unidata/LDM-sub009/internal/adminui"
	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/downstream"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
	"github.com/Unidata/LDM-sub009/internal/productqueue"
	"github.com/Unidata/LDM-sub009/internal/toolutils"
)

var cfg = config.DefaultDownstream()

var cmdLdmd = &cobra.Command{
	Use:     "ldmd CONFIG-FILE",
	Short:   "LDM-7 downstream receiver daemon",
	Version: "LDM-sub009",
	Args:    cobra.ExactArgs(1),
	Run:     run,
}

func init() {
	cmdLdmd.Flags().StringVar(&cfg.CpuProfile, "cpu-profile", "", "Write CPU profile to file")
	cmdLdmd.Flags().StringVar(&cfg.MemProfile, "mem-profile", "", "Write memory profile to file")
	cmdLdmd.Flags().StringVar(&cfg.BlockProfile, "block-profile", "", "Write block profile to file")
}

func run(cmd *cobra.Command, args []string) {
	configFile := args[0]
	cfg.BaseDir = filepath.Dir(configFile)

	if err := toolutils.ReadYaml(cfg, configFile); err != nil {
		ldmlog.Log.Fatal("ldmd", "read config failed", "err", err)
	}

	level, err := ldmlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		ldmlog.Log.Fatal("ldmd", "bad log-level", "err", err)
	}
	ldmlog.Log.SetLevel(level)

	profiler := NewProfiler(cfg)
	if err := profiler.Start(); err != nil {
		ldmlog.Log.Fatal("ldmd", "profiler start failed", "err", err)
	}

	queue, err := productqueue.NewBadgerQueue(cfg.Resolve(cfg.DataDir))
	if err != nil {
		ldmlog.Log.Fatal("ldmd", "open product queue failed", "err", err)
	}
	defer queue.Close()

	ctl, err := downstream.New(*cfg, queue)
	if err != nil {
		ldmlog.Log.Fatal("ldmd", "construct controller failed", "err", err)
	}

	var hub *adminui.Hub
	stopWatch := make(chan struct{})
	if cfg.AdminListen != "" {
		hub = adminui.New(cfg.AdminListen)
		go func() {
			if err := hub.Run(); err != nil {
				ldmlog.Log.Warn("ldmd", "admin UI server exited", "err", err)
			}
		}()
		go watchState(hub, ctl, stopWatch)
	}

	done := make(chan error, 1)
	go func() { done <- ctl.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		ldmlog.Log.Info("ldmd", "received signal, shutting down", "signal", sig)
		ctl.Stop()
		<-done
	case err := <-done:
		if err != nil {
			ldmlog.Log.Warn("ldmd", "controller exited", "err", err)
		}
	}

	if hub != nil {
		close(stopWatch)
		hub.Close()
	}
	profiler.Stop()
}

// watchState publishes a session-state-transition event to hub each time
// ctl's lifecycle state changes, at pollInterval granularity.
func watchState(hub *adminui.Hub, ctl *downstream.Controller, stop <-chan struct{}) {
	const pollInterval = 2 * time.Second
	last := ctl.State()
	for {
		select {
		case <-stop:
			return
		case <-time.After(pollInterval):
			cur := ctl.State()
			if cur != last {
				hub.Publish(adminui.Event{
					Time:      time.Now(),
					Component: ctl.String(),
					Message:   "state transition",
					Fields:    map[string]any{"from": last.String(), "to": cur.String()},
				})
				last = cur
			}
		}
	}
}

func main() {
	if err := cmdLdmd.Execute(); err != nil {
		os.Exit(1)
	}
}
