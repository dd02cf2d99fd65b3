package answers

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funmi/casi-export/internal/models"
)

func texts(m map[string]Value) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.Text()
	}
	return out
}

func TestFlatten_TwoLevels(t *testing.T) {
	doc := Decode([]byte(`{
		"dog_caseload": {"count": 7, "note": "ok"},
		"lepto": {"diagnosed": true, "ratio": 2.5}
	}`))
	got := texts(Flatten(doc))
	want := map[string]string{
		"dog_caseload.count": "7",
		"dog_caseload.note":  "ok",
		"lepto.diagnosed":    "true",
		"lepto.ratio":        "2.5",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten_SkipsNonObjectPages(t *testing.T) {
	doc := map[string]any{
		"draft":  nil,
		"scalar": "x",
		"list":   []any{1, 2},
		"page":   map[string]any{"f": "v", "nested": map[string]any{"deep": 1}, "nil": nil},
	}
	flat := Flatten(doc)
	if len(flat) != 3 {
		t.Fatalf("len = %d, want 3 (%v)", len(flat), flat)
	}
	if flat["page.nested"].Kind != Absent || flat["page.nil"].Kind != Absent {
		t.Error("nested objects and nulls should flatten to absent")
	}
	if flat["page.f"].Text() != "v" {
		t.Errorf("page.f = %q", flat["page.f"].Text())
	}
}

func TestDecode_TolerantOfGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "[1,2]", "{not json", `"str"`} {
		if got := Decode([]byte(raw)); len(got) != 0 {
			t.Errorf("Decode(%q) = %v, want empty", raw, got)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		typ  models.InputType
		want string
	}{
		{"int ok", FromAny(json.Number("7")), models.InputInt, "7"},
		{"int from whole float", FromAny(json.Number("7.0")), models.InputInt, "7.0"},
		{"int rejects fraction", FromAny(json.Number("7.5")), models.InputInt, ""},
		{"int rejects string", FromAny("7"), models.InputInt, ""},
		{"bool ok", FromAny(false), models.InputBoolean, "false"},
		{"bool rejects string", FromAny("yes"), models.InputBoolean, ""},
		{"enum ok", FromAny("increasing"), models.InputEnum, "increasing"},
		{"enum rejects number", FromAny(json.Number("1")), models.InputEnum, ""},
		{"multiline ok", FromAny("line1\nline2"), models.InputMultiline, "line1\nline2"},
		{"undeclared passes", FromAny(true), "", "true"},
		{"unknown type keeps scalar", FromAny("x"), "rating", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Coerce(tt.in, tt.typ).Text(); got != tt.want {
				t.Errorf("Coerce = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenTyped(t *testing.T) {
	doc := Decode([]byte(`{"p": {"count": "seven", "flag": true, "extra": "kept"}}`))
	types := map[string]models.InputType{
		"p.count": models.InputInt,
		"p.flag":  models.InputBoolean,
	}
	got := texts(FlattenTyped(doc, types))
	want := map[string]string{"p.count": "", "p.flag": "true", "p.extra": "kept"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FlattenTyped mismatch (-want +got):\n%s", diff)
	}
}

func TestFromAny_NativeNumbers(t *testing.T) {
	if got := FromAny(3.0).Text(); got != "3" {
		t.Errorf("float64 3.0 = %q", got)
	}
	if got := FromAny(12).Text(); got != "12" {
		t.Errorf("int 12 = %q", got)
	}
}
