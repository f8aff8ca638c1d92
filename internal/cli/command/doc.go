// Package command provides the fidloc CLI commands.
//
// Global flags and the config file are resolved once in the app's Before
// hook into a Runtime, which every command reads from the app metadata.
// The Runtime opens the remote client and the local queue lazily so that
// commands which need neither (version, config) work without a server or
// a data directory.
package command
