package ledger

import (
	"encoding/json"
	"strconv"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// detailVersion tags the serialized line-item document so future shape
// changes stay readable. Unknown fields are tolerated on read.
const detailVersion = 1

type importDetailDoc struct {
	Version int          `json:"version"`
	Lines   []ImportLine `json:"lines"`
}

type saleDetailDoc struct {
	Version int        `json:"version"`
	Lines   []SaleLine `json:"lines"`
}

// MarshalImportDetail serializes import lines into the detail document.
func MarshalImportDetail(lines []ImportLine) ([]byte, error) {
	return json.Marshal(importDetailDoc{Version: detailVersion, Lines: lines})
}

// UnmarshalImportDetail parses and validates a stored import detail document.
// A bare JSON array (the pre-versioning shape) is still accepted.
func UnmarshalImportDetail(raw []byte) ([]ImportLine, error) {
	if len(raw) == 0 {
		return nil, shared.NewValidation("detail", "detail document is empty")
	}
	var doc importDetailDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		var legacy []ImportLine
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
			return nil, shared.NewValidation("detail", validationAt(i, "missing product"))
		}
		if line.Quantity <= 0 {
			return nil, shared.NewValidation("detail", validationAt(i, "quantity must be positive"))
		}
		if line.UnitCost < 0 || line.UnitSalePrice < 0 {
			return nil, shared.NewValidation("detail", validationAt(i, "prices must be non-negative"))
		}
	}
	return doc.Lines, nil
}

// MarshalSaleDetail serializes sale lines into the detail document.
func MarshalSaleDetail(lines []SaleLine) ([]byte, error) {
	return json.Marshal(saleDetailDoc{Version: detailVersion, Lines: lines})
}

// UnmarshalSaleDetail parses and validates a stored sale detail document.
func UnmarshalSaleDetail(raw []byte) ([]SaleLine, error) {
	if len(raw) == 0 {
		return nil, shared.NewValidation("detail", "detail document is empty")
	}
	var doc saleDetailDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		var legacy []SaleLine
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
			return nil, shared.NewValidation("detail", validationAt(i, "missing product"))
		}
		if line.Quantity <= 0 {
			return nil, shared.NewValidation("detail", validationAt(i, "quantity must be positive"))
		}
		if line.UnitSalePrice < 0 {
			return nil, shared.NewValidation("detail", validationAt(i, "price must be non-negative"))
		}
	}
	return doc.Lines, nil
}

func validationAt(index int, msg string) string {
	return "line " + strconv.Itoa(index) + ": " + msg
}
