package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolve_LdflagsWin(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
		}}, true
	}

	got := resolve("v1.0.0", "abc123", "2026-02-02", read)
	if got.Commit != "abc123" || got.BuildTime != "2026-02-02" {
		t.Errorf("resolve() = %+v, ldflags values should win", got)
	}
}

func TestResolve_VCSFallback(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		}}, true
	}

	got := resolve("dev", "", "", read)
	if got.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want shortened revision", got.Commit)
	}
	if got.BuildTime != "2026-01-01T00:00:00Z" {
		t.Errorf("BuildTime = %q", got.BuildTime)
	}
	if !got.Modified {
		t.Error("Modified should be true")
	}
}

func TestResolve_NoBuildInfo(t *testing.T) {
	got := resolve("dev", "", "", func() (*debug.BuildInfo, bool) { return nil, false })
	if got.Commit != "unknown" || got.BuildTime != "unknown" {
		t.Errorf("resolve() = %+v", got)
	}
	if got.GoVersion == "" {
		t.Error("GoVersion should come from the runtime")
	}
}

func TestStringAndUserAgent(t *testing.T) {
	if s := String(); !strings.Contains(s, "built at") {
		t.Errorf("String() = %q", s)
	}
	if ua := UserAgent("fidloc"); !strings.HasPrefix(ua, "fidloc/") {
		t.Errorf("UserAgent() = %q", ua)
	}
}
