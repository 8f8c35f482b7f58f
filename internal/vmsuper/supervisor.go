// Package vmsuper implements the VM Supervisor. It runs inside the server
// process; there is no separate supervisor process per sandbox. For each
// sandbox it launches the VMM subprocess with its output written to a
// per-sandbox log file, records the PID and config fingerprint to a small
// per-namespace database, and exposes a status query that re-derives
// liveness from the recorded PID rather than trusting in-memory state.
package vmsuper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpcerr"
	"github.com/microsandbox/microsandbox/internal/vmm"
)

const stopSignal = syscall.SIGTERM

// Status is a point-in-time snapshot of a managed sandbox.
type Status struct {
	Running       bool
	CPUUsage      float64
	MemoryUsage   int64
	DiskUsage     int64
	UptimeSeconds int64
	RestartCount  int
}

// Manager owns one supervisor database per namespace and launches VMM
// processes on demand. The server holds only this Manager; each launched
// sandbox is addressed by (namespace, name) plus the PID recorded in the
// database — a weak reference that is re-queried on demand rather than a
// strong in-memory handle, so a supervisor crash is observed, not fatal.
type Manager struct {
	vmm *vmm.VMM

	mu  sync.Mutex
	dbs map[string]*DB // namespace -> DB
}

// NewManager creates a Manager that launches VMM subprocesses via bin.
func NewManager(bin string) *Manager {
	return &Manager{
		vmm: vmm.New(bin),
		dbs: make(map[string]*DB),
	}
}

func (m *Manager) dbFor(dbPath string) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[dbPath]; ok {
		return db, nil
	}
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	m.dbs[dbPath] = db
	return db, nil
}

// LaunchParams bundles everything Launch needs beyond the VMM spec itself.
type LaunchParams struct {
	DBPath      string
	LogPath     string
	Name        string
	ConfigPath  string
	ConfigMtime int64
	Spec        vmm.LaunchSpec
}

// Launch starts the VMM subprocess for one sandbox and records its PID. If
// a prior record exists for the same name whose config_mtime differs, the
// stale entry is invalidated (the caller is starting a fresh launch, not
// resuming an unrecognized dead process).
func (m *Manager) Launch(p LaunchParams) (*Status, error) {
	db, err := m.dbFor(p.DBPath)
	if err != nil {
		return nil, rpcerr.Backendf(err, "open supervisor db")
	}

	if existing, err := db.Get(p.Name); err == nil && existing.ConfigMtime != p.ConfigMtime {
		db.Delete(p.Name)
	}

	if err := os.MkdirAll(filepath.Dir(p.LogPath), 0o755); err != nil {
		return nil, rpcerr.Backendf(err, "create log dir")
	}
	if err := rotateLogIfLarge(p.LogPath); err != nil {
		return nil, rpcerr.Backendf(err, "rotate sandbox log")
	}
	logFile, err := os.OpenFile(p.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, rpcerr.Backendf(err, "open sandbox log")
	}
	defer logFile.Close()

	handle, err := m.vmm.Launch(p.Spec, logFile)
	if err != nil {
		return nil, rpcerr.Backendf(err, "launch vmm for %s", p.Name)
	}

	if err := db.Upsert(p.Name, handle.PID, p.ConfigPath, p.ConfigMtime, "running"); err != nil {
		handle.Stop()
		return nil, rpcerr.Backendf(err, "record supervisor state")
	}

	// Reap the process in the background so it never becomes a zombie; a
	// guest crash only updates the recorded status, it does not propagate.
	go func(name string) {
		handle.Wait()
		db.SetStatus(name, "stopped")
	}(p.Name)

	return &Status{Running: true}, nil
}

// Stop sends SIGTERM to the recorded PID and marks the sandbox stopped.
// Per the stop protocol, the caller must release the sandbox's portal port
// unconditionally regardless of what Stop returns.
func (m *Manager) Stop(dbPath, name string) error {
	db, err := m.dbFor(dbPath)
	if err != nil {
		return rpcerr.Backendf(err, "open supervisor db")
	}

	record, err := db.Get(name)
	if err != nil {
		return rpcerr.NotFoundf("sandbox %s is not recorded as running", name)
	}

	proc, err := os.FindProcess(record.PID)
	if err == nil {
		proc.Signal(stopSignal)
	}
	return db.SetStatus(name, "stopped")
}

// Query returns the current status of a managed sandbox, re-deriving
// liveness from the recorded PID so a supervisor crash surfaces as "not
// running" on the next call rather than stale in-memory state.
func (m *Manager) Query(dbPath, name string, diskPaths ...string) (*Status, error) {
	db, err := m.dbFor(dbPath)
	if err != nil {
		return nil, rpcerr.Backendf(err, "open supervisor db")
	}

	record, err := db.Get(name)
	if err != nil {
		return &Status{Running: false}, nil
	}

	if !vmm.Alive(record.PID) {
		db.SetStatus(name, "stopped")
		return &Status{Running: false, RestartCount: record.RestartCount}, nil
	}

	uptime := uptimeSeconds(record.StartedAt)

	cpu, err := cpuPercent(record.PID, 50*time.Millisecond)
	if err != nil {
		return &Status{Running: true, UptimeSeconds: uptime, RestartCount: record.RestartCount}, nil
	}
	mem, _ := memUsageBytes(record.PID)

	return &Status{
		Running:       true,
		CPUUsage:      cpu,
		MemoryUsage:   mem,
		DiskUsage:     diskUsageBytes(diskPaths...),
		UptimeSeconds: uptime,
		RestartCount:  record.RestartCount,
	}, nil
}

// uptimeSeconds derives a sandbox's uptime from its recorded started_at
// timestamp (SQLite's "YYYY-MM-DD HH:MM:SS" UTC default). An unparsable or
// future timestamp yields 0 rather than a negative duration.
func uptimeSeconds(startedAt string) int64 {
	t, err := time.Parse("2006-01-02 15:04:05", startedAt)
	if err != nil {
		return 0
	}
	elapsed := time.Since(t.UTC())
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed.Seconds())
}

// ConfigMtime returns the last recorded config mtime for a sandbox, or an
// error if it has never been launched.
func (m *Manager) ConfigMtime(dbPath, name string) (int64, error) {
	db, err := m.dbFor(dbPath)
	if err != nil {
		return 0, err
	}
	record, err := db.Get(name)
	if err != nil {
		return 0, fmt.Errorf("no record for %s", name)
	}
	return record.ConfigMtime, nil
}

// Close closes every open namespace database.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, db := range m.dbs {
		db.Close()
	}
}
