package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Algorithm names a digest function.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	FNV128a Algorithm = "fnv128a"
	BLAKE3  Algorithm = "blake3"
)

var (
	// ErrUnknownAlgorithm is returned when an algorithm name is not registered.
	ErrUnknownAlgorithm = errors.New("hasher: unknown algorithm")

	// ErrUnknownEncoding is returned when an encoding name is not registered.
	ErrUnknownEncoding = errors.New("hasher: unknown encoding")
)

var algorithms = map[Algorithm]func() hash.Hash{
	MD5:     md5.New,
	SHA1:    sha1.New,
	SHA256:  sha256.New,
	FNV128a: fnv.New128a,
	BLAKE3:  func() hash.Hash { return blake3.New() },
}

// New returns the constructor for a, or ErrUnknownAlgorithm.
func (a Algorithm) New() (func() hash.Hash, error) {
	fn, ok := algorithms[Algorithm(strings.ToLower(string(a)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
	return fn, nil
}

// Algorithms lists the registered algorithm names in ascending order.
func Algorithms() []Algorithm {
	names := make([]Algorithm, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

var encodings = map[string]encoding.Encoding{
	"utf-8":        encoding.Nop,
	"utf8":         encoding.Nop,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

// LookupEncoding resolves a text encoding by name. The empty name is UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return encoding.Nop, nil
	}
	enc, ok := encodings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}
