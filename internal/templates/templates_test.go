package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/header"
)

const q2 = `
version: v2
pages:
  - id: dog_caseload
    kind: census
    title: Dogs seen
    inputs:
      - id: count
        type: int
        min: 0
      - id: shelter
        type: boolean
  - id: notes
    inputs:
      - id: comment
        type: multiline
        maxLength: 500
      - id: region
        type: enum
        options: [north, south]
`

func TestParse(t *testing.T) {
	tmpl, err := Parse([]byte(q2))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"dog_caseload.count", "dog_caseload.shelter", "notes.comment", "notes.region"}
	if diff := cmp.Diff(want, header.Columns(tmpl)); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if tmpl.Pages[1].Inputs[0].MaxLength == nil || *tmpl.Pages[1].Inputs[0].MaxLength != 500 {
		t.Error("maxLength not decoded")
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"empty":           ``,
		"no version":      "pages:\n  - id: a\n    inputs: []\n",
		"unknown key":     "version: v1\npages:\n  - id: a\n    colour: red\n",
		"bad type":        "version: v1\npages:\n  - id: a\n    inputs:\n      - id: x\n        type: float\n",
		"enum no options": "version: v1\npages:\n  - id: a\n    inputs:\n      - id: x\n        type: enum\n",
		"duplicate page":  "version: v1\npages:\n  - id: a\n  - id: a\n",
		"duplicate input": "version: v1\npages:\n  - id: a\n    inputs:\n      - {id: x, type: int}\n      - {id: x, type: int}\n",
		"min over max":    "version: v1\npages:\n  - id: a\n    inputs:\n      - {id: x, type: int, min: 5, max: 1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v2.yaml")
	if err := os.WriteFile(path, []byte(q2), 0o644); err != nil {
		t.Fatal(err)
	}
	tmpl, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tmpl.Version != "v2" || len(tmpl.Pages) != 2 {
		t.Errorf("template = %+v", tmpl)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
