// Package templates reads survey template definitions from YAML.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

var inputTypes = []any{
	models.InputBoolean,
	models.InputInt,
	models.InputEnum,
	models.InputMultiline,
}

// Parse decodes and validates a template definition. Unknown keys are
// rejected so a misspelt field never silently drops a column.
func Parse(data []byte) (*models.Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t models.Template
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("templates: empty document: %w", apperr.ErrInvalidInput)
		}
		return nil, fmt.Errorf("templates: decode: %v: %w", err, apperr.ErrInvalidInput)
	}
	if err := Validate(&t); err != nil {
		return nil, fmt.Errorf("templates: %v: %w", err, apperr.ErrInvalidInput)
	}
	return &t, nil
}

// Load reads and parses the template file at path.
func Load(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks that the template has a version, uniquely identified
// pages and well-formed inputs.
func Validate(t *models.Template) error {
	if err := validation.ValidateStruct(t,
		validation.Field(&t.Version, validation.Required),
		validation.Field(&t.Pages, validation.Required),
	); err != nil {
		return err
	}

	pages := make(map[string]bool, len(t.Pages))
	for i := range t.Pages {
		p := &t.Pages[i]
		if err := validation.ValidateStruct(p,
			validation.Field(&p.ID, validation.Required),
		); err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		if pages[p.ID] {
			return fmt.Errorf("page %s: duplicate id", p.ID)
		}
		pages[p.ID] = true

		inputs := make(map[string]bool, len(p.Inputs))
		for j := range p.Inputs {
			in := &p.Inputs[j]
			if err := validateInput(in); err != nil {
				return fmt.Errorf("page %s input %d: %w", p.ID, j, err)
			}
			if inputs[in.ID] {
				return fmt.Errorf("page %s input %s: duplicate id", p.ID, in.ID)
			}
			inputs[in.ID] = true
		}
	}
	return nil
}

func validateInput(in *models.InputDef) error {
	err := validation.ValidateStruct(in,
		validation.Field(&in.ID, validation.Required),
		validation.Field(&in.Type, validation.Required, validation.In(inputTypes...)),
		validation.Field(&in.Options, validation.When(in.Type == models.InputEnum, validation.Required)),
	)
	if err != nil {
		return err
	}
	if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
		return fmt.Errorf("min %d exceeds max %d", *in.Min, *in.Max)
	}
	return nil
}
