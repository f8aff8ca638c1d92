// Package output provides output formatting for the fidloc CLI.
//
//   - formatter.go: Format selection, JSON and YAML formatters
//   - table.go: Table rendering and the table formatter
//   - views.go: table layouts for locations, pending records and API keys
//   - spinner.go: progress animation for long-running commands
package output
