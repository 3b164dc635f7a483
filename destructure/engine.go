package destructure

import (
	"context"
	"log/slog"

	"github.com/jacentio/unnest/hasher"
	"github.com/jacentio/unnest/tree"
)

const (
	// Root names the top-level row of every document.
	Root = "__root__"

	// Nested is the unique id that switches the engine to cascaded
	// identifiers.
	Nested = "NESTED"

	// DefaultMaxDepth is the depth limit used when none is configured.
	DefaultMaxDepth = 5
)

// Engine splits documents into rows. It keeps no per-call state, so one
// Engine may serve any number of goroutines.
type Engine struct {
	hasher   *hasher.Hasher
	uniqueID string
	exclude  map[string]struct{}
	maxDepth int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithUniqueID sets the seed mixed into every RowID. Passing Nested selects
// cascaded identifiers instead.
func WithUniqueID(id string) Option {
	return func(e *Engine) {
		e.uniqueID = id
	}
}

// WithExcludedKeys drops the given keys from every row.
func WithExcludedKeys(keys ...string) Option {
	return func(e *Engine) {
		for _, k := range keys {
			e.exclude[k] = struct{}{}
		}
	}
}

// WithMaxDepth sets how many levels of nesting are allowed. Values below 1
// fall back to DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine hashing with h. A nil h uses hasher.New().
func New(h *hasher.Hasher, opts ...Option) *Engine {
	if h == nil {
		h = hasher.New()
	}
	e := &Engine{
		hasher:   h,
		exclude:  make(map[string]struct{}),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxDepth < 1 {
		e.maxDepth = DefaultMaxDepth
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// UniqueID returns the configured seed.
func (e *Engine) UniqueID() string { return e.uniqueID }

// MaxDepth returns the configured depth limit.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// Excluded reports whether key is dropped from rows.
func (e *Engine) Excluded(key string) bool {
	_, ok := e.exclude[key]
	return ok
}

func (e *Engine) nested() bool { return e.uniqueID == Nested }

// Destructure flattens doc into rows ending with the Root row.
func (e *Engine) Destructure(doc *tree.Object) ([]Row, error) {
	return e.DestructureNamed(doc, Root)
}

// DestructureJSON parses data and flattens it. The top level must be an
// object.
func (e *Engine) DestructureJSON(data []byte) ([]Row, error) {
	v, err := tree.Parse(data)
	if err != nil {
		return nil, err
	}
	if v.Kind() != tree.KindObject {
		return nil, ErrNotObject
	}
	return e.Destructure(v.Object())
}

// DestructureNamed flattens doc as if it had been found under name. When name
// is Root the last row is the document root with no parent; otherwise the
// last row is left without a parent for the caller to attach.
func (e *Engine) DestructureNamed(doc *tree.Object, name string) ([]Row, error) {
	if doc == nil {
		doc = tree.NewObject()
	}

	seed := e.uniqueID
	if name == Root && e.nested() {
		seed = ""
	}

	rows, err := e.walk(doc, name, 1, seed)
	if err != nil {
		e.logger.Debug("destructure failed", "name", name, "error", err)
		return nil, err
	}

	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("destructured document",
			"name", name,
			"rows", len(rows),
			"rowID", rows[len(rows)-1].RowID,
		)
	}
	return rows, nil
}

// walk emits the rows for obj: descendants first, obj's own row last. seed is
// the seed obj is hashed with; depth counts obj's level starting at 1.
func (e *Engine) walk(obj *tree.Object, name string, depth int, seed string) ([]Row, error) {
	id := e.hasher.HashValue(tree.ObjectValue(obj), seed)

	childSeed := e.uniqueID
	if e.nested() {
		childSeed = id
	}

	var rows []Row
	own := tree.NewObject()
	for _, m := range obj.Members() {
		// Checked per key: an empty node at the limit never trips it.
		if depth >= e.maxDepth {
			return nil, &DepthError{Limit: e.maxDepth}
		}
		// Exclusion happens here, after id was taken over the full data.
		if e.Excluded(m.Key) {
			continue
		}

		switch m.Value.Kind() {
		case tree.KindObject:
			children, err := e.walk(m.Value.Object(), m.Key, depth+1, childSeed)
			if err != nil {
				return nil, err
			}
			rows = append(rows, withParent(children, id)...)
		case tree.KindArray:
			children, err := e.split(m.Value, m.Key, id, depth, childSeed)
			if err != nil {
				return nil, err
			}
			rows = append(rows, children...)
		default:
			own.Set(m.Key, m.Value)
		}
	}

	return append(rows, Row{
		Name:  name,
		Table: tree.ObjectValue(own),
		RowID: id,
	}), nil
}

// split emits the rows for an array found under key in the node parentID,
// which sits at depth. An array of scalars is kept whole; anything else is
// taken apart element by element.
func (e *Engine) split(arr tree.Value, key, parentID string, depth int, seed string) ([]Row, error) {
	elems := arr.Elems()
	if allPrimitive(elems) {
		return []Row{{
			Name:     key,
			Table:    arr,
			RowID:    e.hasher.HashValue(arr, seed),
			ParentID: parentID,
		}}, nil
	}

	var rows []Row
	for _, el := range elems {
		switch el.Kind() {
		case tree.KindObject:
			children, err := e.walk(el.Object(), key, depth+1, seed)
			if err != nil {
				return nil, err
			}
			rows = append(rows, withParent(children, parentID)...)
		case tree.KindArray:
			// Arrays are not nodes: objects inside an inner array sit one
			// level below the owner, same as in the outer one.
			children, err := e.split(el, key, parentID, depth, seed)
			if err != nil {
				return nil, err
			}
			rows = append(rows, children...)
		default:
			rows = append(rows, Row{
				Name:     key,
				Table:    el,
				RowID:    e.hasher.HashValue(el, seed),
				ParentID: parentID,
			})
		}
	}
	return rows, nil
}

func allPrimitive(elems []tree.Value) bool {
	for _, el := range elems {
		if !el.IsPrimitive() {
			return false
		}
	}
	return true
}
