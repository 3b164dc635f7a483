// Package tree models JSON documents as an ordered sum type.
//
// A [Value] is exactly one of string, number, bool, null, array or object.
// Objects keep their members in insertion order so that traversals over a
// parsed document visit fields the way they were written:
//
//	v, err := tree.Parse([]byte(`{"b": 1, "a": [true, "x"]}`))
//	obj := v.Object()
//	for _, m := range obj.Members() {
//	    fmt.Println(m.Key, m.Value.Kind())
//	}
//
// Numbers are held as their JSON literal ([encoding/json.Number]) so that no
// precision is lost between parsing and hashing.
//
// Documents can also be built from plain Go values with [FromAny]; map keys are
// then visited in ascending order because Go maps carry no order of their own.
package tree
