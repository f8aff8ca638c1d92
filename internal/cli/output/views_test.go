package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

func render(t *testing.T, data any, wide bool) string {
	t.Helper()
	var buf bytes.Buffer
	if err := (&TableFormatter{Wide: wide}).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestLocationsTable(t *testing.T) {
	locs := Locations{{
		ID: "loc-1", Name: "Oak Hut", LocationType: domain.LocationTypeHut,
		Address: "1 Main St", RequiresLadder: true, Latitude: 40.5,
	}}

	out := render(t, locs, false)
	if !strings.Contains(out, "Oak Hut") || !strings.Contains(out, "yes") {
		t.Errorf("narrow table:\n%s", out)
	}
	if strings.Contains(out, "LAT") {
		t.Errorf("narrow table has wide columns:\n%s", out)
	}

	out = render(t, locs, true)
	if !strings.Contains(out, "LAT") || !strings.Contains(out, "40.500000") {
		t.Errorf("wide table:\n%s", out)
	}
}

func TestLocationsTotals(t *testing.T) {
	locs := Locations{
		{Name: "a", LocationType: domain.LocationTypeHut},
		{Name: "b", LocationType: domain.LocationTypeHut},
		{Name: "c", LocationType: domain.LocationTypeCO},
		{Name: "d"},
	}
	want := "All (4)  Hub (1)  Garage (0)  Hut (2)  CO (1)"
	if got := locs.Totals(); got != want {
		t.Errorf("Totals() = %q, want %q", got, want)
	}
	if got := (Locations{}).Totals(); got != "All (0)  Hub (0)  Garage (0)  Hut (0)  CO (0)" {
		t.Errorf("empty Totals() = %q", got)
	}
}

func TestLocationDetail(t *testing.T) {
	out := render(t, LocationDetail{&domain.Location{ID: "loc-1", Name: "Oak Hut", Latitude: 40.5, Longitude: -75.25}}, false)
	for _, want := range []string{"name", "Oak Hut", "notes", "-", "https://www.google.com/maps/dir/?api=1&destination=40.5,-75.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestPendingRecordsTable(t *testing.T) {
	recs := PendingRecords{{
		PendingID: "pending_01",
		OrgID:     "acme",
		QueuedAt:  time.Now().UTC().Format(time.RFC3339),
		Attempts:  2,
		LastError: "remote store unavailable",
		Location:  domain.Location{Name: "Oak Hut"},
	}}

	out := render(t, recs, true)
	for _, want := range []string{"PENDING_ID", "pending_01", "acme", "Oak Hut", "2", "remote store unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("pending table missing %q:\n%s", want, out)
		}
	}
}

func TestAPIKeysTable(t *testing.T) {
	keys := APIKeys{{KeyID: "flak-1", Name: "tech", Role: "member", Enabled: true}}
	out := render(t, keys, false)
	for _, want := range []string{"KEY_ID", "flak-1", "member", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("keys table missing %q:\n%s", want, out)
		}
	}
}
