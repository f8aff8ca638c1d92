// Package main provides the entry point for fidloc, the field client.
//
// fidloc writes locations to fidloc-server and queues them in a local
// badger database when the server cannot be reached:
//
//   - Location management (add, list, get, update, delete)
//   - Local queue inspection and manual sync
//   - A background agent that syncs the queue on reconnect
//   - API key management for organization admins
//
// Usage:
//
//	fidloc [global flags] command [flags] [args]
//	fidloc location add --name "North Hub" --lat 40.1 --lng -75.2
//	fidloc queue sync
//	fidloc agent --metrics-addr 127.0.0.1:9464
//
// Settings come from ~/.fidloc/config.yaml, FIDLOC_* environment
// variables and global flags, in increasing priority.
package main
