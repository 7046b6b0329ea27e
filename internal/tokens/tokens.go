// Package tokens assembles extracted brand signals into theme tokens and
// renders them as text.
package tokens

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/brandscan/internal/palette"
	"github.com/JakeFAU/brandscan/internal/sampler"
)

// Defaults used when a signal was not captured.
const (
	DefaultRadiusPx    = 8
	DefaultSpacingPx   = 16
	DefaultBorderWidth = "1px"
	DefaultBorderStyle = "solid"
	DefaultBodyWeight  = 400
	DefaultHeadWeight  = 700
	rootFontPx         = 16
	typeScaleRatio     = 1.25
)

// systemStack is appended to every captured font family.
var systemStack = []string{"system-ui", "-apple-system", "Segoe UI", "Roboto", "Helvetica Neue", "Arial", "sans-serif"}

var (
	defaultShadows = Shadow{
		SM: "0 1px 2px rgba(0, 0, 0, 0.05)",
		MD: "0 4px 6px rgba(0, 0, 0, 0.1)",
		LG: "0 10px 15px rgba(0, 0, 0, 0.15)",
	}
	spacingMultipliers = []float64{0.25, 0.5, 1, 1.5, 2, 3, 4}
	typeScaleSteps     = []int{-1, 0, 1, 2, 3, 4}
)

// TypeScaleNames label the entries of Font.Scale.
var TypeScaleNames = []string{"sm", "base", "lg", "xl", "2xl", "3xl"}

// FontToken is one font role.
type FontToken struct {
	Family string   `json:"family"`
	Stack  []string `json:"stack"`
	Weight int      `json:"weight"`
}

// Font groups the font roles and the type scale in rem.
type Font struct {
	Body    FontToken `json:"body"`
	Heading FontToken `json:"heading"`
	Scale   []string  `json:"scale"`
}

// Radius is the corner radius scale.
type Radius struct {
	SM string `json:"sm"`
	MD string `json:"md"`
	LG string `json:"lg"`
	XL string `json:"xl"`
}

// Spacing is the base unit and its derived steps.
type Spacing struct {
	Base  string   `json:"base"`
	Steps []string `json:"steps"`
}

// Shadow is the elevation scale.
type Shadow struct {
	SM string `json:"sm"`
	MD string `json:"md"`
	LG string `json:"lg"`
}

// Border is the default border declaration.
type Border struct {
	Width string `json:"width"`
	Style string `json:"style"`
}

// ThemeTokens is the canonical description of a brand's visual design.
type ThemeTokens struct {
	Color   palette.Palette `json:"color"`
	Font    Font            `json:"font"`
	Radius  Radius          `json:"radius"`
	Spacing Spacing         `json:"spacing"`
	Shadow  Shadow          `json:"shadow"`
	Border  Border          `json:"border"`
}

// Input carries everything Assemble needs.
type Input struct {
	Palette     palette.Palette
	BodyFont    sampler.FontInfo
	HeadingFont sampler.FontInfo
	Radius      string
	SpacingBase string
	Shadow      string
	Border      sampler.Border
}

// InputFromPools copies the scalar signals of merged pools next to a palette.
func InputFromPools(p palette.Palette, pools sampler.Pools) Input {
	return Input{
		Palette:     p,
		BodyFont:    pools.BodyFont,
		HeadingFont: pools.HeadingFont,
		Radius:      pools.Radius,
		SpacingBase: pools.SpacingBase,
		Shadow:      pools.Shadow,
		Border:      pools.Border,
	}
}

// Assemble builds ThemeTokens, substituting defaults for missing signals.
// The heading font falls back to the body font.
func Assemble(in Input) ThemeTokens {
	body := fontToken(in.BodyFont, DefaultBodyWeight)
	heading := body
	heading.Weight = DefaultHeadWeight
	if !in.HeadingFont.IsZero() {
		heading = fontToken(in.HeadingFont, DefaultHeadWeight)
	}

	radius := parsePx(in.Radius, DefaultRadiusPx)
	spacing := parsePx(in.SpacingBase, DefaultSpacingPx)

	steps := make([]string, len(spacingMultipliers))
	for i, m := range spacingMultipliers {
		steps[i] = px(spacing * m)
	}
	scale := make([]string, len(typeScaleSteps))
	for i, n := range typeScaleSteps {
		scale[i] = rem(math.Pow(typeScaleRatio, float64(n)))
	}

	shadow := defaultShadows
	if in.Shadow != "" && plainCSSValue(in.Shadow) {
		shadow.MD = in.Shadow
	}
	border := Border{Width: DefaultBorderWidth, Style: DefaultBorderStyle}
	if in.Border.Style != "" && isCSSIdent(in.Border.Style) {
		border.Style = in.Border.Style
		if in.Border.Width != "" && plainCSSValue(in.Border.Width) {
			border.Width = in.Border.Width
		}
	}

	return ThemeTokens{
		Color: in.Palette,
		Font:  Font{Body: body, Heading: heading, Scale: scale},
		Radius: Radius{
			SM: px(radius / 2),
			MD: px(radius),
			LG: px(radius * 1.5),
			XL: px(radius * 2),
		},
		Spacing: Spacing{Base: px(spacing), Steps: steps},
		Shadow:  shadow,
		Border:  border,
	}
}

func fontToken(info sampler.FontInfo, defaultWeight int) FontToken {
	weight := info.Weight
	if weight <= 0 {
		weight = defaultWeight
	}
	if info.IsZero() {
		return FontToken{Family: systemStack[0], Stack: slices.Clone(systemStack), Weight: weight}
	}
	stack := []string{info.Family}
	for _, name := range append(slices.Clone(info.Fallbacks), systemStack...) {
		if !containsFold(stack, name) {
			stack = append(stack, name)
		}
	}
	return FontToken{Family: info.Family, Stack: stack, Weight: weight}
}

func containsFold(list []string, name string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(s, name) })
}

// parsePx reads a CSS length in px or rem. Anything else yields fallback.
func parsePx(raw string, fallback float64) float64 {
	raw = strings.TrimSpace(strings.ToLower(raw))
	factor := 1.0
	switch {
	case strings.HasSuffix(raw, "px"):
		raw = strings.TrimSuffix(raw, "px")
	case strings.HasSuffix(raw, "rem"):
		raw = strings.TrimSuffix(raw, "rem")
		factor = rootFontPx
	default:
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return v * factor
}

// plainCSSValue reports whether a page-supplied value can be written into a
// declaration as is: no statement, block, string, comment or markup syntax.
func plainCSSValue(v string) bool {
	if strings.Contains(v, "/*") {
		return false
	}
	for _, r := range v {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(";{}\\\"'<>", r) {
			return false
		}
	}
	return true
}

func px(v float64) string {
	return trimFloat(v) + "px"
}

func rem(v float64) string {
	return trimFloat(v) + "rem"
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
