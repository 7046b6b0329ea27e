package sampler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSignals marks extraction output that does not match RawSignals.
var ErrInvalidSignals = errors.New("invalid extraction output")

// ColorCount is one computed color and how many elements used it.
type ColorCount struct {
	Color string `json:"color" validate:"required,max=128"`
	Count int    `json:"count" validate:"gte=1"`
}

// RawFont is a computed font declaration.
type RawFont struct {
	Family string `json:"family" validate:"max=512"`
	Weight string `json:"weight" validate:"max=16"`
	Size   string `json:"size" validate:"max=32"`
}

// RawSignals is the fixed schema of the in-page extraction result. Nothing
// returned by a page is used before it passes Validate.
type RawSignals struct {
	Title       string       `json:"title" validate:"max=256"`
	Foreground  []ColorCount `json:"foreground" validate:"max=500,dive"`
	Background  []ColorCount `json:"background" validate:"max=500,dive"`
	Body        RawFont      `json:"body"`
	Heading     RawFont      `json:"heading"`
	Radius      string       `json:"radius" validate:"max=128"`
	Padding     string       `json:"padding" validate:"max=128"`
	Shadow      string       `json:"shadow" validate:"max=1024"`
	BorderWidth string       `json:"border_width" validate:"max=32"`
	BorderStyle string       `json:"border_style" validate:"omitempty,oneof=none hidden dotted dashed solid double groove ridge inset outset"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func schemaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks s against the extraction schema.
func (s *RawSignals) Validate() error {
	if err := schemaValidator().Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignals, err)
	}
	return nil
}
