package stocktake

import (
	"sort"
	"strings"
	"time"
)

// Status is the stocktake lifecycle. Lot quantities are only overwritten when
// a stocktake completes.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusWaiting   Status = "WAITING_FOR_APPROVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the move from s to target is legal:
// DRAFT may move to WAITING_FOR_APPROVE, and DRAFT or WAITING_FOR_APPROVE
// may move to COMPLETED or CANCELLED. Terminal states accept nothing.
func (s Status) CanTransitionTo(target Status) bool {
	if s.Terminal() || !target.IsValid() || target == s {
		return false
	}
	switch target {
	case StatusWaiting:
		return s == StatusDraft
	case StatusCompleted, StatusCancelled:
		return s == StatusDraft || s == StatusWaiting
	default:
		return false
	}
}

// Entry is one raw physical count taken at one zone. Several entries may
// cover the same product across different zones; grouping merges them. Lot
// references are optional: a counter may record a specific batch or only a
// product-level quantity.
type Entry struct {
	ProductID  int64   `json:"productId"`
	LotID      int64   `json:"lotId,omitempty"`
	BatchCode  string  `json:"batchCode,omitempty"`
	ZoneID     *int64  `json:"zoneId,omitempty"`
	RealZoneID *int64  `json:"zoneReal,omitempty"`
	Counted    float64 `json:"countedQuantity"`
	Note       string  `json:"note,omitempty"`
}

// Line is one grouped discrepancy record: every count of one product folded
// together. Diff is always Counted − RecordedRemain.
type Line struct {
	ProductID      int64   `json:"productId"`
	ZoneIDs        []int64 `json:"zoneIds,omitempty"`
	Counted        float64 `json:"countedQuantity"`
	RecordedRemain float64 `json:"recordedRemain"`
	Diff           float64 `json:"diff"`
	Note           string  `json:"note,omitempty"`
	Entries        []Entry `json:"entries,omitempty"`
}

// Stocktake is a physical count session for one store.
type Stocktake struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	StoreID   int64     `json:"store_id" db:"store_id"`
	Status    Status    `json:"status" db:"status"`
	Date      time.Time `json:"date" db:"date"`
	Note      string    `json:"note" db:"note"`
	Detail    []byte    `json:"-" db:"detail"`
	Lines     []Line    `json:"lines"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateRequest captures a new count session from raw per-zone entries.
type CreateRequest struct {
	StoreID int64     `json:"store_id"`
	Status  Status    `json:"status,omitempty"`
	Date    time.Time `json:"date,omitempty"`
	Note    string    `json:"note"`
	Entries []Entry   `json:"entries" validate:"required,min=1,dive"`
}

// UpdateStatusRequest moves a stocktake through its lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows stocktake listings.
type ListFilter struct {
	StoreID int64
	Status  Status
	Limit   int
	Offset  int
}

// FromEntries turns raw per-zone entries into ungrouped lines, one per entry.
// RecordedRemain is filled in afterwards from the lot store.
func FromEntries(entries []Entry) []Line {
	lines := make([]Line, 0, len(entries))
	for _, e := range entries {
		var zones []int64
		if e.ZoneID != nil {
			zones = []int64{*e.ZoneID}
		}
		lines = append(lines, Line{
			ProductID: e.ProductID,
			ZoneIDs:   zones,
			Counted:   e.Counted,
			Note:      e.Note,
			Entries:   []Entry{e},
		})
	}
	return lines
}

// Group folds lines of the same product into one: counted quantities are
// summed, zone ids unioned, notes concatenated and entries appended.
// RecordedRemain is taken from the first line of the group; lines already
// grouped carry equal values, so the fold is idempotent and the diff is
// recomputed from the merged totals. Line order follows first appearance.
func Group(lines []Line) []Line {
	index := map[int64]int{}
	grouped := make([]Line, 0, len(lines))
	for _, line := range lines {
		at, seen := index[line.ProductID]
		if !seen {
			index[line.ProductID] = len(grouped)
			merged := line
			merged.ZoneIDs = uniqueZones(line.ZoneIDs)
			merged.Entries = append([]Entry(nil), line.Entries...)
			merged.Diff = merged.Counted - merged.RecordedRemain
			grouped = append(grouped, merged)
			continue
		}
		target := &grouped[at]
		target.Counted += line.Counted
		target.ZoneIDs = uniqueZones(append(target.ZoneIDs, line.ZoneIDs...))
		target.Note = joinNotes(target.Note, line.Note)
		target.Entries = append(target.Entries, line.Entries...)
		target.Diff = target.Counted - target.RecordedRemain
	}
	return grouped
}

func uniqueZones(zones []int64) []int64 {
	if len(zones) == 0 {
		return nil
	}
	seen := map[int64]bool{}
	out := make([]int64, 0, len(zones))
	for _, z := range zones {
		if !seen[z] {
			seen[z] = true
			out = append(out, z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || b == a:
		return a
	case strings.Contains(a, b):
		return a
	default:
		return a + "; " + b
	}
}
