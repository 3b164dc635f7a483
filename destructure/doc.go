// Package destructure flattens nested JSON documents into rows linked by
// content-derived identifiers.
//
// Every object in a document becomes one row holding its own scalar fields.
// Nested objects become rows of their own whose ParentID is the containing
// row's RowID. Arrays of scalars become a single row carrying the whole
// array; other arrays are split element by element.
//
//	e := destructure.New(hasher.New(), destructure.WithExcludedKeys("secret"))
//	rows, err := e.DestructureJSON([]byte(`{"a": 1, "c": {"x": 9}}`))
//
// The root row is always last and is named [Root].
//
// # Identifier modes
//
// By default every RowID is the hash of the row's source subtree under the
// configured unique id. With [WithUniqueID]([Nested]) identifiers cascade
// instead: the root is hashed without a seed and each descendant is hashed
// with its parent's RowID as seed.
//
// # Exclusion
//
// Excluded keys are dropped from the rows, but a node's RowID is computed
// over its data before exclusion.
//
// # Errors
//
// Documents nested at or beyond the configured depth fail with a
// [*DepthError] matching [ErrMaxDepth]; no rows are returned in that case.
package destructure
