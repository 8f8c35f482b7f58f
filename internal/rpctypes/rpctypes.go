// Package rpctypes holds the data types shared across the RPC dispatcher,
// the lifecycle manager, the VM supervisor, and the portal — the wire
// shapes of the JSON-RPC method surface plus their on-disk representation.
package rpctypes

// Scope controls which callers may reach a sandbox's exposed ports.
type Scope string

const (
	ScopeNone   Scope = "none"
	ScopeGroup  Scope = "group"
	ScopePublic Scope = "public"
	ScopeAny    Scope = "any"
)

// SandboxConfig is the declarative description of one sandbox, persisted in
// a namespace's YAML config file under the "sandboxes" map.
type SandboxConfig struct {
	Image      string            `yaml:"image" json:"image"`
	MemoryMiB  int               `yaml:"memory,omitempty" json:"memory_mib,omitempty"`
	CPUs       int               `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Volumes    []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"` // "host:guest"
	Ports      []string          `yaml:"ports,omitempty" json:"ports,omitempty"`     // "host:guest"
	Envs       []string          `yaml:"envs,omitempty" json:"envs,omitempty"`       // "KEY=VALUE"
	DependsOn  []string          `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Workdir    string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Shell      string            `yaml:"shell,omitempty" json:"shell,omitempty"`
	Scripts    map[string]string `yaml:"scripts,omitempty" json:"scripts,omitempty"`
	Exec       string            `yaml:"exec,omitempty" json:"exec,omitempty"`
	Scope      Scope             `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// Entrypoint returns the resolved guest command and whether it names a
// sandbox script (rather than a shell or a literal exec line), following
// the priority order scripts["start"], exec, shell.
func (c *SandboxConfig) Entrypoint() (command string, isScript bool, ok bool) {
	if start, exists := c.Scripts["start"]; exists && start != "" {
		return start, true, true
	}
	if c.Exec != "" {
		return c.Exec, false, true
	}
	if c.Shell != "" {
		return c.Shell, false, true
	}
	return "", false, false
}

// Merge overlays non-zero fields of override onto a copy of the receiver,
// implementing the "request-supplied config wins, missing fields fall back
// to on-disk" precedence the lifecycle manager's start protocol requires.
func (c SandboxConfig) Merge(override SandboxConfig) SandboxConfig {
	merged := c
	if override.Image != "" {
		merged.Image = override.Image
	}
	if override.MemoryMiB != 0 {
		merged.MemoryMiB = override.MemoryMiB
	}
	if override.CPUs != 0 {
		merged.CPUs = override.CPUs
	}
	if len(override.Volumes) > 0 {
		merged.Volumes = override.Volumes
	}
	if len(override.Ports) > 0 {
		merged.Ports = override.Ports
	}
	if len(override.Envs) > 0 {
		merged.Envs = override.Envs
	}
	if len(override.DependsOn) > 0 {
		merged.DependsOn = override.DependsOn
	}
	if override.Workdir != "" {
		merged.Workdir = override.Workdir
	}
	if override.Shell != "" {
		merged.Shell = override.Shell
	}
	if len(override.Scripts) > 0 {
		merged.Scripts = override.Scripts
	}
	if override.Exec != "" {
		merged.Exec = override.Exec
	}
	if override.Scope != "" {
		merged.Scope = override.Scope
	}
	return merged
}

// NamespaceFile is the top-level shape of a namespace's YAML config file.
type NamespaceFile struct {
	Sandboxes map[string]SandboxConfig `yaml:"sandboxes"`
}

// SandboxRecord is the {namespace, name, running, cpu_usage, memory_usage,
// disk_usage} shape returned by sandbox.metrics.get.
type SandboxRecord struct {
	Namespace     string  `json:"namespace"`
	Name          string  `json:"name"`
	Running       bool    `json:"running"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   int64   `json:"memory_usage"`
	DiskUsage     int64   `json:"disk_usage"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	RestartCount  int     `json:"restart_count"`
}

// ProcessResult is the outcome of one sandbox.command.run invocation.
type ProcessResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Language is the tagged variant of REPL sub-engines the reactor dispatches
// across; no open-ended plugin surface is needed for three fixed languages.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNode   Language = "node"
	LanguageRust   Language = "rust"
)

// Stream tags one line of REPL or command output.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one line of captured output, tagged with its stream.
type Line struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// EvalStatus is the reactor's final classification of one evaluation.
type EvalStatus string

const (
	EvalCompleted EvalStatus = "completed"
	EvalError     EvalStatus = "error"
	EvalTimeout   EvalStatus = "timeout"
)

// EvalResult is the result of one sandbox.repl.run invocation, returned by
// both the portal and (forwarded verbatim) the dispatcher.
type EvalResult struct {
	ID       string     `json:"id"`
	Language Language   `json:"language"`
	Output   string     `json:"output"`
	Error    string     `json:"error,omitempty"`
	Status   EvalStatus `json:"status"`
	HasError bool       `json:"has_error"`
}
