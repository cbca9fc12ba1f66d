//go:build linux

package hostmetrics

import (
	"os"
	"strconv"
	"strings"
)

// cpuState holds the previous /proc/stat aggregate jiffy counters.
type cpuState struct {
	idle  uint64
	total uint64
}

// sampleCPU reads /proc/stat's aggregate "cpu" line and returns the
// percentage busy since prev.
func sampleCPU(prev cpuState) (percent float64, next cpuState) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, prev
	}

	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, prev
	}

	var total uint64
	var idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle field
			idle = v
		}
	}

	next = cpuState{idle: idle, total: total}

	deltaTotal := total - prev.total
	deltaIdle := idle - prev.idle
	if prev.total == 0 || deltaTotal == 0 {
		return 0, next
	}

	busy := float64(deltaTotal-deltaIdle) / float64(deltaTotal) * 100
	if busy < 0 {
		busy = 0
	}
	return busy, next
}

// sampleMemPercent reads /proc/meminfo and returns committed-memory load
// as a percentage: (total - available) / total * 100.
func sampleMemPercent() float64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}

	var total, available uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total == 0 {
		return 0
	}
	return float64(total-available) / float64(total) * 100
}

// osVersion reads /etc/os-release for a friendly distribution name.
func osVersion() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "Linux"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		}
	}
	return "Linux"
}
