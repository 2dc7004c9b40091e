package abi

import "github.com/wippyai/hostlayer/sockets"

// DefaultModuleName is the import module guests link against.
const DefaultModuleName = "fuzion"

// Config controls a Host.
type Config struct {
	// Sockets performs socket operations. Nil uses sockets.NewManager().
	Sockets *sockets.Manager

	// ModuleName is the host module name. Empty means DefaultModuleName.
	ModuleName string

	// AllowedRoot confines every path argument to this directory. Relative
	// guest paths are resolved against it. Empty means no confinement.
	AllowedRoot string

	// EnableFS enables file, directory and environment calls. When false
	// they are still exported but fail with EACCES.
	EnableFS bool
}

// DefaultConfig returns the configuration used by New(nil).
func DefaultConfig() *Config {
	return &Config{
		ModuleName: DefaultModuleName,
		EnableFS:   true,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ModuleName == "" {
		out.ModuleName = DefaultModuleName
	}
	if out.Sockets == nil {
		out.Sockets = sockets.NewManager()
	}
	return out
}
