// Package wcag measures text contrast between palette colors.
package wcag

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/JakeFAU/brandscan/internal/palette"
)

// Contrast thresholds for normal and large text.
const (
	AANormal  = 4.5
	AALarge   = 3.0
	AAANormal = 7.0
	AAALarge  = 4.5
)

// Pair names in a palette report.
const (
	PairPrimaryBackground    = "primary_background"
	PairForegroundBackground = "foreground_background"
	PairPrimaryForeground    = "primary_foreground"
)

// Level holds pass flags for one conformance tier.
type Level struct {
	Normal bool `json:"normal"`
	Large  bool `json:"large"`
}

// Report is the contrast verdict for one color pair.
type Report struct {
	Ratio float64 `json:"ratio"`
	AA    Level   `json:"aa"`
	AAA   Level   `json:"aaa"`
}

// Luminance returns the relative luminance of c.
func Luminance(c colorful.Color) float64 {
	r, g, b := c.Clamped().LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// Ratio returns the contrast ratio of a and b, between 1 and 21.
func Ratio(a, b colorful.Color) float64 {
	la, lb := Luminance(a), Luminance(b)
	hi, lo := math.Max(la, lb), math.Min(la, lb)
	return (hi + 0.05) / (lo + 0.05)
}

// Evaluate reports the contrast of fg text on bg.
func Evaluate(fg, bg colorful.Color) Report {
	ratio := Ratio(fg, bg)
	return Report{
		Ratio: math.Round(ratio*100) / 100,
		AA:    Level{Normal: ratio >= AANormal, Large: ratio >= AALarge},
		AAA:   Level{Normal: ratio >= AAANormal, Large: ratio >= AAALarge},
	}
}

// Validate checks the text pairs of p. The issue count is the number of
// pairs failing AA for normal text. Unparseable colors are reported as a
// failing pair with ratio 1.
func Validate(p palette.Palette) (map[string]Report, int) {
	pairs := []struct {
		name   string
		fg, bg string
	}{
		{PairPrimaryBackground, p.Primary, p.Background},
		{PairForegroundBackground, p.Foreground, p.Background},
		{PairPrimaryForeground, p.Primary, p.Foreground},
	}

	reports := make(map[string]Report, len(pairs))
	issues := 0
	for _, pair := range pairs {
		report := Report{Ratio: 1}
		fg, errFG := colorful.Hex(pair.fg)
		bg, errBG := colorful.Hex(pair.bg)
		if errFG == nil && errBG == nil {
			report = Evaluate(fg, bg)
		}
		if !report.AA.Normal {
			issues++
		}
		reports[pair.name] = report
	}
	return reports, issues
}
