// Package hostmetrics samples the liveness and coarse host metrics the
// supervisor reports in its periodic HEARTBEAT: uptime since the
// supervisor started, whole-system CPU percentage, whole-system committed
// memory percentage, and static hostname/OS strings.
package hostmetrics

import (
	"os"
	"runtime"
	"time"
)

// Metrics is the payload of a single heartbeat sample.
type Metrics struct {
	Uptime int64
	CPU    float64
	Mem    float64
}

// Sampler tracks supervisor start time and rolling CPU-delta state across
// calls to Sample. Uptime counts from supervisor start, so one
// long-lived Sampler is correct even across reconnects.
type Sampler struct {
	start     time.Time
	cpuState  cpuState
	cpuPrimed bool
}

// NewSampler starts the uptime clock immediately.
func NewSampler() *Sampler {
	return &Sampler{start: time.Now()}
}

// Sample returns the current metrics. The first call's CPU figure is
// always 0: there is no prior sample to compute a delta against.
func (s *Sampler) Sample() Metrics {
	uptime := int64(time.Since(s.start).Seconds())

	cpuPercent, next := sampleCPU(s.cpuState)
	s.cpuState = next

	if !s.cpuPrimed {
		cpuPercent = 0
		s.cpuPrimed = true
	}

	return Metrics{
		Uptime: uptime,
		CPU:    cpuPercent,
		Mem:    sampleMemPercent(),
	}
}

// Hostname returns the system hostname or "unknown".
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// OSInfo returns a human-readable "<GOOS> <version>" string, e.g.
// "linux Ubuntu 24.04.1 LTS" or "windows Windows 11 Pro".
func OSInfo() string {
	return runtime.GOOS + " " + osVersion()
}
