// Package lifecycle implements the Sandbox Lifecycle Manager: the
// start/stop/metrics protocol that merges configuration, assigns a portal
// port, launches a supervisor, and polls for readiness.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/microsandbox/microsandbox/internal/nsconfig"
	"github.com/microsandbox/microsandbox/internal/portalloc"
	"github.com/microsandbox/microsandbox/internal/rpcerr"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
	"github.com/microsandbox/microsandbox/internal/vmm"
	"github.com/microsandbox/microsandbox/internal/vmsuper"
	"github.com/microsandbox/microsandbox/pkg/names"
)

// readinessPollInterval is the cadence at which Start polls the supervisor
// for a running=true status.
const readinessPollInterval = 20 * time.Millisecond

// Options configures a Manager.
type Options struct {
	PortMin, PortMax      int
	PortalGuestPort       int
	VMMBin                string
	DefaultMemoryMiB      int
	DefaultCPUs           int
	ReadinessTimeoutReuse time.Duration
	ReadinessTimeoutPull  time.Duration
}

// Manager implements sandbox.start, sandbox.stop, and sandbox.metrics.get.
type Manager struct {
	cfgStore *nsconfig.Store
	ports    *portalloc.Allocator
	super    *vmsuper.Manager
	opts     Options
}

// New creates a lifecycle Manager.
func New(cfgStore *nsconfig.Store, opts Options) *Manager {
	if opts.PortMin == 0 && opts.PortMax == 0 {
		opts.PortMin, opts.PortMax = portalloc.DefaultMin, portalloc.DefaultMax
	}
	if opts.PortalGuestPort == 0 {
		opts.PortalGuestPort = 4444
	}
	if opts.DefaultMemoryMiB == 0 {
		opts.DefaultMemoryMiB = 1024
	}
	if opts.DefaultCPUs == 0 {
		opts.DefaultCPUs = 1
	}
	if opts.ReadinessTimeoutReuse == 0 {
		opts.ReadinessTimeoutReuse = 60 * time.Second
	}
	if opts.ReadinessTimeoutPull == 0 {
		opts.ReadinessTimeoutPull = 180 * time.Second
	}
	return &Manager{
		cfgStore: cfgStore,
		ports:    portalloc.New(opts.PortMin, opts.PortMax),
		super:    vmsuper.NewManager(opts.VMMBin),
		opts:     opts,
	}
}

func portalKey(namespace, name string) string {
	return namespace + "/" + name
}

// portMappingSuffix is the trailing ":<guest>" every prior port_allocated
// mapping carries; rewriting replaces any entry with this suffix so
// re-starts stay idempotent on the port-mapping list.
func portMappingSuffix(guestPort int) string {
	return ":" + strconv.Itoa(guestPort)
}

// StartResult is returned by Start; Warning is set (but Err is nil) when the
// readiness timeout elapses without observing running=true.
type StartResult struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// Start implements the start protocol described in the component design:
// validate, ensure namespace, merge config, assign a port, rewrite and
// persist config, launch a supervisor, and poll for readiness.
func (m *Manager) Start(ctx context.Context, namespace, name string, requested rpctypes.SandboxConfig) (*StartResult, error) {
	if err := names.Validate("namespace", namespace); err != nil {
		return nil, rpcerr.Wrap(rpcerr.Validation, "invalid namespace", err)
	}
	if err := names.Validate("sandbox", name); err != nil {
		return nil, rpcerr.Wrap(rpcerr.Validation, "invalid sandbox name", err)
	}

	if err := m.cfgStore.EnsureNamespace(namespace); err != nil {
		return nil, rpcerr.Backendf(err, "ensure namespace %s", namespace)
	}

	unlock, err := m.cfgStore.Lock(namespace)
	if err != nil {
		return nil, rpcerr.Backendf(err, "lock namespace %s", namespace)
	}
	defer unlock()

	nf, err := m.cfgStore.Load(namespace)
	if err != nil {
		return nil, rpcerr.Backendf(err, "load namespace config")
	}

	onDisk := nf.Sandboxes[name]
	merged := onDisk.Merge(requested)
	if merged.Image == "" {
		return nil, rpcerr.Validationf("sandbox %s/%s: no image supplied in request or on-disk config", namespace, name)
	}
	if merged.MemoryMiB == 0 {
		merged.MemoryMiB = m.opts.DefaultMemoryMiB
	}
	if merged.CPUs == 0 {
		merged.CPUs = m.opts.DefaultCPUs
	}
	if _, _, ok := merged.Entrypoint(); !ok {
		return nil, rpcerr.Validationf("sandbox %s/%s: none of scripts[start], exec, or shell resolves to an entrypoint", namespace, name)
	}

	key := portalKey(namespace, name)
	portalPort, err := m.ports.Assign(key)
	if err != nil {
		return nil, err // already a rpcerr.ResourceExhausted
	}

	merged.Ports = rewritePortMapping(merged.Ports, portalPort, m.opts.PortalGuestPort)

	nf.Sandboxes[name] = merged
	if err := m.cfgStore.Save(namespace, nf); err != nil {
		m.ports.Release(key)
		return nil, rpcerr.Backendf(err, "persist namespace config")
	}

	mtime, err := m.cfgStore.ConfigMtime(namespace)
	if err != nil {
		m.ports.Release(key)
		return nil, rpcerr.Backendf(err, "stat namespace config")
	}

	spec, err := buildLaunchSpec(merged, portalPort, m.opts.PortalGuestPort)
	if err != nil {
		m.ports.Release(key)
		return nil, rpcerr.Wrap(rpcerr.Validation, "build launch spec", err)
	}

	dbPath := m.cfgStore.SandboxDBPath(namespace)
	if _, err := m.super.Launch(vmsuper.LaunchParams{
		DBPath:      dbPath,
		LogPath:     m.cfgStore.LogPath(namespace, name),
		Name:        name,
		ConfigPath:  m.cfgStore.Dir(namespace),
		ConfigMtime: mtime,
		Spec:        spec,
	}); err != nil {
		m.ports.Release(key)
		return nil, err
	}
	log.Printf("lifecycle: launched sandbox %s/%s on portal port %d", namespace, name, portalPort)

	timeout := m.opts.ReadinessTimeoutReuse
	if requested.Image != "" {
		timeout = m.opts.ReadinessTimeoutPull
	}

	if !m.pollUntilRunning(ctx, dbPath, name, timeout) {
		return &StartResult{
			Message: fmt.Sprintf("sandbox %s/%s start accepted", namespace, name),
			Warning: fmt.Sprintf("readiness timeout (%s) elapsed before sandbox reported running; it may still come up", timeout),
		}, nil
	}

	return &StartResult{Message: fmt.Sprintf("sandbox %s/%s started", namespace, name)}, nil
}

func (m *Manager) pollUntilRunning(ctx context.Context, dbPath, name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := m.super.Query(dbPath, name)
		if err == nil && status.Running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(readinessPollInterval):
		}
	}
	return false
}

// Stop implements the stop protocol: validate, verify, instruct the
// supervisor to stop, and release the port unconditionally — even when the
// supervisor reports an error, since a leaked port is worse than a VM that
// took an extra moment to notice SIGTERM.
func (m *Manager) Stop(namespace, name string) (string, error) {
	if err := names.Validate("namespace", namespace); err != nil {
		return "", rpcerr.Wrap(rpcerr.Validation, "invalid namespace", err)
	}
	if err := names.Validate("sandbox", name); err != nil {
		return "", rpcerr.Wrap(rpcerr.Validation, "invalid sandbox name", err)
	}

	if !m.cfgStore.Exists(namespace) {
		return "", rpcerr.NotFoundf("namespace %s not found", namespace)
	}

	key := portalKey(namespace, name)
	defer m.ports.Release(key)

	dbPath := m.cfgStore.SandboxDBPath(namespace)
	if err := m.super.Stop(dbPath, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("sandbox %s/%s stopped", namespace, name), nil
}

// Metrics implements sandbox.metrics.get. namespace == "*" iterates every
// namespace directory; a namespace or sandbox with no recorded state
// produces an empty list, not an error.
func (m *Manager) Metrics(namespace string) ([]rpctypes.SandboxRecord, error) {
	if err := names.ValidateQuery("namespace", namespace); err != nil {
		return nil, rpcerr.Wrap(rpcerr.Validation, "invalid namespace", err)
	}

	var namespaces []string
	if namespace == names.Wildcard {
		all, err := m.cfgStore.Namespaces()
		if err != nil {
			return nil, rpcerr.Backendf(err, "list namespaces")
		}
		namespaces = all
	} else {
		namespaces = []string{namespace}
	}

	var records []rpctypes.SandboxRecord
	for _, ns := range namespaces {
		if !m.cfgStore.Exists(ns) {
			continue
		}
		dbPath := m.cfgStore.SandboxDBPath(ns)
		nf, err := m.cfgStore.Load(ns)
		if err != nil {
			continue
		}
		for name := range nf.Sandboxes {
			status, err := m.super.Query(dbPath, name)
			if err != nil {
				continue
			}
			records = append(records, rpctypes.SandboxRecord{
				Namespace:     ns,
				Name:          name,
				Running:       status.Running,
				CPUUsage:      status.CPUUsage,
				MemoryUsage:   status.MemoryUsage,
				DiskUsage:     status.DiskUsage,
				UptimeSeconds: status.UptimeSeconds,
				RestartCount:  status.RestartCount,
			})
		}
	}
	return records, nil
}

// PortalPort returns the portal host port assigned to a running sandbox,
// used by the Portal Forwarder to address the portal's JSON-RPC endpoint.
func (m *Manager) PortalPort(namespace, name string) (int, error) {
	return m.ports.Lookup(portalKey(namespace, name))
}

// PortPool exposes the underlying port allocator for periodic metrics
// sampling; it reports only free/assigned counts (see metrics.PoolReporter).
func (m *Manager) PortPool() *portalloc.Allocator {
	return m.ports
}

func rewritePortMapping(existing []string, portalPort, guestPort int) []string {
	suffix := portMappingSuffix(guestPort)
	kept := existing[:0:0]
	for _, p := range existing {
		if !strings.HasSuffix(p, suffix) {
			kept = append(kept, p)
		}
	}
	return append(kept, fmt.Sprintf("%d%s", portalPort, suffix))
}

func buildLaunchSpec(cfg rpctypes.SandboxConfig, portalPort, guestPort int) (vmm.LaunchSpec, error) {
	command, isScript, ok := cfg.Entrypoint()
	if !ok {
		return vmm.LaunchSpec{}, fmt.Errorf("no resolvable entrypoint")
	}

	spec := vmm.LaunchSpec{
		Rootfs:    cfg.Image,
		MemoryMiB: cfg.MemoryMiB,
		CPUs:      cfg.CPUs,
		Volumes:   cfg.Volumes,
		Workdir:   cfg.Workdir,
		Env:       cfg.Envs,
	}
	for _, p := range cfg.Ports {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		host, err1 := strconv.Atoi(parts[0])
		guest, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		spec.Ports = append(spec.Ports, vmm.PortMapping{Host: host, Guest: guest})
	}

	if isScript {
		spec.ScriptName = "start"
		spec.ScriptBody = command
		spec.Command = []string{"/bin/sh", fmt.Sprintf("/.sandbox_scripts/%s", spec.ScriptName)}
	} else {
		spec.Command = strings.Fields(command)
	}

	return spec, nil
}
