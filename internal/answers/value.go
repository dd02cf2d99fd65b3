// Package answers flattens nested page→field answer documents into
// "pageId.fieldId" columns of scalar values.
package answers

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/funmi/casi-export/internal/models"
)

// Kind discriminates the scalar held by a Value.
type Kind uint8

const (
	Absent Kind = iota
	String
	Number
	Bool
)

// Value is a single answer scalar. The zero Value is Absent.
type Value struct {
	Kind Kind
	Str  string
	Num  json.Number
	Bool bool
}

// Text renders the value as a CSV cell: strings verbatim, numbers in their
// decoded textual form, booleans as true/false, absent as "".
func (v Value) Text() string {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return v.Num.String()
	case Bool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// FromAny converts a JSON-decoded scalar into a Value. Objects, arrays and
// nulls are absent.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case string:
		return Value{Kind: String, Str: x}
	case json.Number:
		return Value{Kind: Number, Num: x}
	case float64:
		return Value{Kind: Number, Num: json.Number(strconv.FormatFloat(x, 'f', -1, 64))}
	case int:
		return Value{Kind: Number, Num: json.Number(strconv.Itoa(x))}
	case int64:
		return Value{Kind: Number, Num: json.Number(strconv.FormatInt(x, 10))}
	case bool:
		return Value{Kind: Bool, Bool: x}
	default:
		return Value{}
	}
}

// Coerce validates v against the declared input type. A value that does not
// fit the declared type becomes Absent. An empty declared type accepts any
// scalar.
func Coerce(v Value, t models.InputType) Value {
	switch t {
	case "":
		return v
	case models.InputBoolean:
		if v.Kind == Bool {
			return v
		}
	case models.InputInt:
		if v.Kind == Number {
			if _, err := v.Num.Int64(); err == nil {
				return v
			}
			if f, err := v.Num.Float64(); err == nil && f == float64(int64(f)) {
				return v
			}
		}
	case models.InputEnum, models.InputMultiline:
		if v.Kind == String {
			return v
		}
	default:
		if v.Kind != Absent {
			return v
		}
	}
	return Value{}
}

// Flatten converts page→field→scalar answers into "pageId.fieldId" keyed
// values. Non-object pages are skipped so partially saved drafts never fail.
func Flatten(doc map[string]any) map[string]Value {
	out := make(map[string]Value)
	for pageID, pageVal := range doc {
		fields, ok := pageVal.(map[string]any)
		if !ok {
			continue
		}
		for fieldID, raw := range fields {
			out[pageID+"."+fieldID] = FromAny(raw)
		}
	}
	return out
}

// FlattenTyped flattens doc and coerces every value against the declared
// column types. Columns without a declaration keep their raw value.
func FlattenTyped(doc map[string]any, types map[string]models.InputType) map[string]Value {
	flat := Flatten(doc)
	for k, v := range flat {
		flat[k] = Coerce(v, types[k])
	}
	return flat
}

// Decode parses a raw answers document. Numbers are kept in their textual
// form. Empty or non-object documents decode to an empty map.
func Decode(raw []byte) map[string]any {
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return out
	}
	if m, ok := doc.(map[string]any); ok {
		return m
	}
	return out
}
