package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// timeLayout is the table rendering of timestamps.
const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Locations renders a location list.
type Locations []*domain.Location

// Table implements Tabular.
func (ls Locations) Table(wide bool) *Table {
	t := &Table{Headers: []string{"ID", "NAME", "TYPE", "ADDRESS", "LADDER"}}
	if wide {
		t.Headers = append(t.Headers, "LAT", "LNG", "BRACKET", "MODIFIED", "CREATED_BY")
	}
	for _, l := range ls {
		row := []string{l.ID, l.Name, l.LocationType.Label(), Cell(l.Address), yesNo(l.RequiresLadder)}
		if wide {
			row = append(row,
				Cell(l.Latitude), Cell(l.Longitude),
				yesNo(l.HasLadderBracket),
				formatTime(l.LastModifiedTime()),
				Cell(l.CreatedBy))
		}
		t.AddRow(row...)
	}
	return t
}

// Totals summarizes the list per type, e.g. "All (3)  Hub (2)  Garage (1)  Hut (0)  CO (0)".
func (ls Locations) Totals() string {
	counts := make(map[string]int)
	for _, l := range ls {
		counts[l.LocationType.Label()]++
	}
	parts := []string{fmt.Sprintf("All (%d)", len(ls))}
	for _, t := range domain.ValidLocationTypes() {
		parts = append(parts, fmt.Sprintf("%s (%d)", t.Label(), counts[t.Label()]))
	}
	return strings.Join(parts, "  ")
}

// LocationDetail renders one location as FIELD/VALUE rows.
type LocationDetail struct {
	*domain.Location
}

// Table implements Tabular.
func (d LocationDetail) Table(bool) *Table {
	l := d.Location
	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", Cell(l.ID))
	t.AddRow("name", l.Name)
	t.AddRow("type", l.LocationType.Label())
	t.AddRow("address", Cell(l.Address))
	t.AddRow("latitude", Cell(l.Latitude))
	t.AddRow("longitude", Cell(l.Longitude))
	t.AddRow("navigate_url", l.NavigateURL())
	t.AddRow("requires_ladder", yesNo(l.RequiresLadder))
	t.AddRow("has_ladder_bracket", yesNo(l.HasLadderBracket))
	t.AddRow("notes", Cell(l.Notes))
	t.AddRow("created_by", Cell(l.CreatedBy))
	t.AddRow("created_at", formatTime(l.CreatedAtTime()))
	t.AddRow("last_modified", formatTime(l.LastModifiedTime()))
	return t
}

// PendingRecords renders the local queue.
type PendingRecords []*domain.PendingRecord

// Table implements Tabular.
func (ps PendingRecords) Table(wide bool) *Table {
	t := &Table{Headers: []string{"PENDING_ID", "ORG", "NAME", "QUEUED_AT", "ATTEMPTS"}}
	if wide {
		t.Headers = append(t.Headers, "LAST_ERROR")
	}
	for _, p := range ps {
		row := []string{p.PendingID, p.OrgID, Cell(p.Location.Name), formatTime(p.QueuedAtTime()), strconv.Itoa(p.Attempts)}
		if wide {
			row = append(row, Cell(p.LastError))
		}
		t.AddRow(row...)
	}
	return t
}

// APIKeys renders an API key list.
type APIKeys []apiv1.APIKeyResponse

// Table implements Tabular.
func (ks APIKeys) Table(wide bool) *Table {
	t := &Table{Headers: []string{"KEY_ID", "NAME", "ROLE", "ENABLED", "LAST_USED"}}
	if wide {
		t.Headers = append(t.Headers, "RATE_LIMIT", "CREATED", "DESCRIPTION")
	}
	for _, k := range ks {
		lastUsed := "-"
		if k.LastUsedAt != nil {
			lastUsed = formatTime(*k.LastUsedAt)
		}
		row := []string{k.KeyID, k.Name, k.Role, yesNo(k.Enabled), lastUsed}
		if wide {
			row = append(row, strconv.Itoa(k.RateLimit), formatTime(k.CreatedAt), Cell(k.Description))
		}
		t.AddRow(row...)
	}
	return t
}
