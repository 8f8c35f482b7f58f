package vmsuper

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var clockTicksPerSec = int64(100) // standard on Linux (sysconf(_SC_CLK_TCK))
var pageSize = int64(4096)

// sample is one point-in-time reading of a process's accumulated CPU ticks.
type sample struct {
	ticks int64
	at    time.Time
}

func readSample(pid int) (sample, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return sample{}, err
	}
	// Fields after the command name (which may itself contain spaces/parens)
	// are whitespace separated; utime is field 14, stime is field 15 (1-indexed).
	end := strings.LastIndexByte(string(data), ')')
	if end < 0 || end+2 >= len(data) {
		return sample{}, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 13 {
		return sample{}, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)
	return sample{ticks: utime + stime, at: time.Now()}, nil
}

// cpuPercent samples a process's CPU usage over a short window. It is a
// best-effort, single-core-normalized percentage meant for the metrics
// endpoint, not for scheduling decisions.
func cpuPercent(pid int, window time.Duration) (float64, error) {
	first, err := readSample(pid)
	if err != nil {
		return 0, err
	}
	time.Sleep(window)
	second, err := readSample(pid)
	if err != nil {
		return 0, err
	}

	elapsed := second.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0, nil
	}
	deltaTicks := second.ticks - first.ticks
	return (float64(deltaTicks) / float64(clockTicksPerSec)) / elapsed * 100, nil
}

// memUsageBytes reads a process's resident set size from /proc/<pid>/statm.
func memUsageBytes(pid int) (int64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("empty /proc/%d/statm", pid)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed /proc/%d/statm", pid)
	}
	residentPages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return residentPages * pageSize, nil
}

// diskUsageBytes sums the sizes os.Stat reports for the given paths.
// Directories are not walked, and missing paths count as zero.
func diskUsageBytes(paths ...string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
