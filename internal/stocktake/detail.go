package stocktake

import (
	"encoding/json"
	"strconv"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// detailVersion tags the serialized line document. Unknown fields are
// tolerated on read.
const detailVersion = 1

type detailDoc struct {
	Version int    `json:"version"`
	Lines   []Line `json:"lines"`
}

// MarshalDetail serializes grouped lines into the detail document.
func MarshalDetail(lines []Line) ([]byte, error) {
	return json.Marshal(detailDoc{Version: detailVersion, Lines: lines})
}

// UnmarshalDetail parses and validates a stored detail document. A bare JSON
// array (the pre-versioning shape) is still accepted. Callers regroup the
// result: older rows may hold per-zone lines that were stored before
// grouping.
func UnmarshalDetail(raw []byte) ([]Line, error) {
	if len(raw) == 0 {
		return nil, shared.NewValidation("detail", "detail document is empty")
	}
	var doc detailDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		var legacy []Line
		if err2 := json.Unmarshal(raw, &legacy); err2 != nil {
			return nil, shared.NewValidation("detail", "detail is not a valid line document")
		}
		doc.Lines = legacy
	}
	if len(doc.Lines) == 0 {
		return nil, shared.NewValidation("detail", "detail contains no lines")
	}
	for i, line := range doc.Lines {
		if line.ProductID == 0 {
			return nil, shared.NewValidation("detail", "line "+strconv.Itoa(i)+": missing product")
		}
		if line.Counted < 0 {
			return nil, shared.NewValidation("detail", "line "+strconv.Itoa(i)+": counted quantity must be non-negative")
		}
	}
	return doc.Lines, nil
}
