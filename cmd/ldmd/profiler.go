package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/Unidata/LDM-sub009/internal/config"
	"github.com/Unidata/LDM-sub009/internal/ldmlog"
)

// Profiler wraps pprof CPU/memory/block profiling around the daemon's
// lifetime, grounded on fw/cmd/profiler.go.
type Profiler struct {
	cfg     *config.Downstream
	cpuFile *os.File
	block   *pprof.Profile
}

// NewProfiler constructs a Profiler reading its output paths from cfg.
func NewProfiler(cfg *config.Downstream) *Profiler {
	return &Profiler{cfg: cfg}
}

// String identifies the profiler in log lines.
func (p *Profiler) String() string { return "profiler" }

// Start opens the configured output files and begins CPU/block profiling.
func (p *Profiler) Start() (err error) {
	if p.cfg.CpuProfile != "" {
		p.cpuFile, err = os.Create(p.cfg.CpuProfile)
		if err != nil {
			return err
		}
		ldmlog.Log.Info(p, "profiling CPU", "out", p.cfg.CpuProfile)
		pprof.StartCPUProfile(p.cpuFile)
	}

	if p.cfg.BlockProfile != "" {
		ldmlog.Log.Info(p, "profiling blocking operations", "out", p.cfg.BlockProfile)
		runtime.SetBlockProfileRate(1)
		p.block = pprof.Lookup("block")
	}

	return nil
}

// Stop writes out the block, memory, and CPU profiles.
func (p *Profiler) Stop() {
	if p.block != nil {
		f, err := os.Create(p.cfg.BlockProfile)
		if err != nil {
			ldmlog.Log.Error(p, "unable to create block profile output", "err", err)
		} else {
			if err := p.block.WriteTo(f, 0); err != nil {
				ldmlog.Log.Error(p, "unable to write block profile", "err", err)
			}
			f.Close()
		}
	}

	if p.cfg.MemProfile != "" {
		f, err := os.Create(p.cfg.MemProfile)
		if err != nil {
			ldmlog.Log.Error(p, "unable to create memory profile output", "err", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				ldmlog.Log.Error(p, "unable to write memory profile", "err", err)
			}
			f.Close()
		}
	}

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
	}
}
