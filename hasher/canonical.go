package hasher

import (
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jacentio/unnest/tree"
)

// canonical renders v in a fixed textual form: objects as {'k': v, ...} with
// keys ascending, arrays as ['a', 'b'], and every scalar as a quoted string.
// Changing any detail of this form changes every row id already stored.
func canonical(v tree.Value) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v tree.Value) {
	switch v.Kind() {
	case tree.KindObject:
		obj := v.Object()
		keys := obj.Keys()
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeQuoted(sb, k)
			sb.WriteString(": ")
			child, _ := obj.Get(k)
			writeCanonical(sb, child)
		}
		sb.WriteByte('}')
	case tree.KindArray:
		sb.WriteByte('[')
		for i, e := range v.Elems() {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	default:
		writeQuoted(sb, scalarText(v))
	}
}

// scalarText is the string form of a scalar.
func scalarText(v tree.Value) string {
	switch v.Kind() {
	case tree.KindString:
		return v.Str()
	case tree.KindBool:
		if v.Boolean() {
			return "True"
		}
		return "False"
	case tree.KindNumber:
		return numberText(string(v.Num()))
	}
	return "None"
}

// numberText prints integers in plain decimal and everything else as the
// shortest round-tripping float.
func numberText(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		if n, ok := new(big.Int).SetString(lit, 10); ok {
			return n.String()
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !math.IsInf(f, 0) {
		return lit
	}
	return floatText(f)
}

func floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// writeQuoted writes s between single quotes, or double quotes when s holds a
// single quote and no double quote. Backslashes, the active quote and
// non-printable runes are escaped.
func writeQuoted(sb *strings.Builder, s string) {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	sb.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r < ' ' || r == 0x7f:
			writeHex(sb, `\x`, r, 2)
		case r < 0x7f:
			sb.WriteRune(r)
		case r == utf8.RuneError || strconv.IsPrint(r):
			sb.WriteRune(r)
		case r <= 0xff:
			writeHex(sb, `\x`, r, 2)
		case r <= 0xffff:
			writeHex(sb, `\u`, r, 4)
		default:
			writeHex(sb, `\U`, r, 8)
		}
	}
	sb.WriteRune(quote)
}

func writeHex(sb *strings.Builder, prefix string, r rune, width int) {
	h := strconv.FormatInt(int64(r), 16)
	sb.WriteString(prefix)
	sb.WriteString(strings.Repeat("0", width-len(h)))
	sb.WriteString(h)
}
