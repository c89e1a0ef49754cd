package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Only the log
// level is applied live; the other flags tell the operator a restart is
// needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true when any matching, session or magnitude
	// setting changed.
	EngineChanged bool

	// OverridesChanged narrows EngineChanged to the override table.
	OverridesChanged bool

	LibraryChanged   bool
	ProvidersChanged bool
	InputChanged     bool
	CastLogChanged   bool
	ServerChanged    bool
}

// RequiresRestart reports whether any change cannot be applied live.
func (d ConfigDiff) RequiresRestart() bool {
	return d.EngineChanged || d.LibraryChanged || d.ProvidersChanged ||
		d.InputChanged || d.CastLogChanged || d.ServerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.ServerChanged = true
	}

	d.OverridesChanged = !slices.Equal(old.Engine.Overrides, new.Engine.Overrides)
	d.EngineChanged = d.OverridesChanged || !reflect.DeepEqual(old.Engine, new.Engine)

	d.LibraryChanged = old.Library.Path != new.Library.Path ||
		old.Library.UseBuiltin() != new.Library.UseBuiltin()
	d.ProvidersChanged = !reflect.DeepEqual(old.Providers, new.Providers)
	d.InputChanged = old.Input != new.Input
	d.CastLogChanged = old.CastLog != new.CastLog

	return d
}
