// Package csvenc serializes export rows as comma-delimited UTF-8 text.
//
// A field is quoted, with inner quotes doubled, if and only if it contains a
// double quote, comma, carriage return or line feed. encoding/csv also quotes
// fields with a leading space, which would change the output of existing
// exports, so the rule is implemented here directly.
package csvenc

import (
	"fmt"
	"strconv"
	"strings"
)

// Escape renders a single field. nil encodes as the empty string.
func Escape(v any) string {
	s := stringify(v)
	if !strings.ContainsAny(s, "\",\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EncodeLine renders one newline-terminated record.
func EncodeLine(fields ...any) string {
	var b strings.Builder
	writeLine(&b, fields)
	return b.String()
}

func writeLine(b *strings.Builder, fields []any) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Escape(f))
	}
	b.WriteByte('\n')
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Buffer accumulates a header line followed by records.
type Buffer struct {
	b    strings.Builder
	rows int
}

// NewBuffer starts a buffer with the given header line.
func NewBuffer(header []string) *Buffer {
	buf := &Buffer{}
	fields := make([]any, len(header))
	for i, h := range header {
		fields[i] = h
	}
	writeLine(&buf.b, fields)
	return buf
}

// Append writes one record.
func (buf *Buffer) Append(fields []string) {
	anyFields := make([]any, len(fields))
	for i, f := range fields {
		anyFields[i] = f
	}
	writeLine(&buf.b, anyFields)
	buf.rows++
}

// Rows returns the number of records appended after the header.
func (buf *Buffer) Rows() int { return buf.rows }

// String returns the encoded content.
func (buf *Buffer) String() string { return buf.b.String() }

// Bytes returns the encoded content as UTF-8 bytes.
func (buf *Buffer) Bytes() []byte { return []byte(buf.b.String()) }
