package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/jacentio/unnest/destructure"
	"github.com/jacentio/unnest/tree"
)

type rowWriter interface {
	WriteRows(rows []destructure.Row) error
}

func newRowWriter(format string, w io.Writer) (rowWriter, error) {
	switch format {
	case "", "jsonl":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return &jsonlWriter{enc: enc}, nil
	case "cbor":
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return &cborWriter{enc: mode.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

type jsonlWriter struct {
	enc *json.Encoder
}

func (w *jsonlWriter) WriteRows(rows []destructure.Row) error {
	for _, row := range rows {
		if err := w.enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// cborRow is a row as written in CBOR mode. Keys match the JSON columns.
type cborRow struct {
	Name     string  `cbor:"__name__"`
	Table    any     `cbor:"__table__"`
	RowID    string  `cbor:"__id__"`
	ParentID *string `cbor:"__parent_id__"`
}

type cborWriter struct {
	enc *cbor.Encoder
}

func (w *cborWriter) WriteRows(rows []destructure.Row) error {
	for _, row := range rows {
		out := cborRow{Name: row.Name, Table: cborValue(row.Table), RowID: row.RowID}
		if row.ParentID != "" {
			parent := row.ParentID
			out.ParentID = &parent
		}
		if err := w.enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

// cborValue converts v into data the CBOR encoder maps onto native types:
// integers that overflow int64 become bignums, other numbers floats.
func cborValue(v tree.Value) any {
	switch v.Kind() {
	case tree.KindNumber:
		n := v.Num()
		if v.IsInteger() {
			if i, err := n.Int64(); err == nil {
				return i
			}
			if b, ok := new(big.Int).SetString(string(n), 10); ok {
				return b
			}
		}
		f, _ := n.Float64()
		return f
	case tree.KindArray:
		elems := v.Elems()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = cborValue(e)
		}
		return out
	case tree.KindObject:
		obj := v.Object()
		out := make(map[string]any, obj.Len())
		for _, m := range obj.Members() {
			out[m.Key] = cborValue(m.Value)
		}
		return out
	}
	return v.ToAny()
}
