package destructure

import (
	"encoding/json"

	"github.com/jacentio/unnest/tree"
)

// Column names used when rows are rendered as JSON.
const (
	NameColumn     = "__name__"
	TableColumn    = "__table__"
	RowIDColumn    = "__id__"
	ParentIDColumn = "__parent_id__"
)

// Row is one flat output record.
type Row struct {
	// Name is the key the subtree appeared under, or Root.
	Name string

	// Table is an object of the node's own scalar fields, or the raw value
	// for rows split out of arrays.
	Table tree.Value

	// RowID is the content hash identifying this row.
	RowID string

	// ParentID is the RowID of the containing row; empty for the root.
	ParentID string
}

// IsRoot reports whether r has no parent.
func (r Row) IsRoot() bool { return r.ParentID == "" }

type rowJSON struct {
	Name     string     `json:"__name__"`
	Table    tree.Value `json:"__table__"`
	RowID    string     `json:"__id__"`
	ParentID *string    `json:"__parent_id__"`
}

// MarshalJSON renders r with the column names above; a root row has a null
// parent.
func (r Row) MarshalJSON() ([]byte, error) {
	out := rowJSON{Name: r.Name, Table: r.Table, RowID: r.RowID}
	if r.ParentID != "" {
		parent := r.ParentID
		out.ParentID = &parent
	}
	return tree.MarshalNoEscape(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (r *Row) UnmarshalJSON(data []byte) error {
	var in rowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Row{Name: in.Name, Table: in.Table, RowID: in.RowID}
	if in.ParentID != nil {
		r.ParentID = *in.ParentID
	}
	return nil
}

// withParent returns a copy of rows where every row still lacking a parent is
// attached to parentID.
func withParent(rows []Row, parentID string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		if r.ParentID == "" {
			r.ParentID = parentID
		}
		out[i] = r
	}
	return out
}
