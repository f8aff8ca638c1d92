// Package buildinfo exposes version information for the fidloc binaries.
//
// Release builds inject values via ldflags:
//
//	go build -ldflags "-X github.com/fidloc/fidloc-go/internal/infra/buildinfo.Version=v1.2.0"
//
// Values left unset fall back to the VCS stamp recorded by the Go toolchain.
package buildinfo
