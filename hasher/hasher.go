package hasher

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"golang.org/x/text/encoding"

	"github.com/jacentio/unnest/tree"
)

// Hasher produces canonical digests. It holds no mutable state and is safe for
// concurrent use.
type Hasher struct {
	newHash  func() hash.Hash
	encoding encoding.Encoding
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithAlgorithm selects a registered digest algorithm. Unknown names leave the
// current algorithm in place; validate names with Algorithm.New first.
func WithAlgorithm(a Algorithm) Option {
	return func(h *Hasher) {
		if fn, err := a.New(); err == nil {
			h.newHash = fn
		}
	}
}

// WithHashFunc installs an arbitrary digest constructor.
func WithHashFunc(fn func() hash.Hash) Option {
	return func(h *Hasher) {
		if fn != nil {
			h.newHash = fn
		}
	}
}

// WithEncoding sets the text encoding used to turn the canonical form and the
// seed into bytes. Characters the encoding cannot represent are replaced.
func WithEncoding(enc encoding.Encoding) Option {
	return func(h *Hasher) {
		if enc != nil {
			h.encoding = enc
		}
	}
}

// New returns a Hasher using MD5 over UTF-8 unless configured otherwise.
func New(opts ...Option) *Hasher {
	h := &Hasher{
		newHash:  algorithms[MD5],
		encoding: encoding.Nop,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns the lowercase hex digest of v's canonical form followed by
// seed. See Normalize for the accepted inputs.
func (h *Hasher) Hash(v any, seed string) string {
	return h.HashValue(Normalize(v), seed)
}

// HashValue is Hash for an already-built tree. A top-level string is still
// given the chance to parse as JSON.
func (h *Hasher) HashValue(v tree.Value, seed string) string {
	if v.Kind() == tree.KindString {
		v = fromText(v.Str())
	}

	d := h.newHash()
	d.Write(h.bytes(canonical(v)))
	d.Write(h.bytes(seed))
	return hex.EncodeToString(d.Sum(nil))
}

// Canonical returns the canonical text that Hash digests for v.
func (h *Hasher) Canonical(v any) string {
	return canonical(Normalize(v))
}

func (h *Hasher) bytes(s string) []byte {
	if h.encoding == encoding.Nop {
		return []byte(s)
	}
	b, err := encoding.ReplaceUnsupported(h.encoding.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		// Only invalid UTF-8 in s gets here; hash the raw bytes instead.
		return []byte(s)
	}
	return b
}

// Normalize turns any accepted input into a tree. Text ([string], [[]byte],
// [json.RawMessage]) is parsed as JSON; when that fails, or the text is the
// JSON null, the text itself is the datum. Trees are used as they are and
// other Go values are converted with tree.FromAny, falling back to their
// formatted text.
func Normalize(v any) tree.Value {
	switch x := v.(type) {
	case tree.Value:
		return x
	case *tree.Object:
		return tree.ObjectValue(x)
	case string:
		return fromText(x)
	case []byte:
		return fromText(string(x))
	case json.RawMessage:
		return fromText(string(x))
	}

	tv, err := tree.FromAny(v)
	if err != nil {
		return tree.String(fmt.Sprint(v))
	}
	return tv
}

func fromText(s string) tree.Value {
	v, err := tree.Parse([]byte(s))
	if err != nil || v.Kind() == tree.KindNull {
		return tree.String(s)
	}
	return v
}
