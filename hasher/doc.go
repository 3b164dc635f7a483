// Package hasher computes deterministic, content-derived digests of JSON data.
//
// A [Hasher] canonicalises its input before digesting it: object keys are
// visited in ascending order, array order is kept and every scalar is rendered
// as text. Two documents holding the same data therefore hash identically no
// matter how their keys were ordered.
//
//	h := hasher.New()
//	id := h.Hash(`{"b": 2, "a": 1}`, "")
//	id == h.Hash(map[string]any{"a": 1, "b": 2}, "") // true
//
// The seed is appended to the canonical bytes before digesting, so the same
// data under different seeds yields unrelated digests. The default digest is
// MD5; see [Algorithm] for the alternatives.
package hasher
