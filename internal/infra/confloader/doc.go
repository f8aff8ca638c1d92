// Package confloader loads layered configuration with koanf.
//
// Sources are applied in order, later ones winning:
//
//  1. Defaults (a map, usually produced by the caller)
//  2. YAML configuration file
//  3. Environment variables
//  4. Explicit overrides (command-line flags)
//
// Environment variables carry the FIDLOC_ prefix and use a double
// underscore to separate sections, so a single underscore can stay inside
// a key name:
//
//	FIDLOC_AGENT__PROBE_INTERVAL=5s   -> agent.probe_interval
//	FIDLOC_STORAGE__DATA_DIR=/var/lib -> storage.data_dir
//
// The Watcher reports writes to a configuration file so long-running
// processes can reload the settings that are safe to change at runtime.
package confloader
