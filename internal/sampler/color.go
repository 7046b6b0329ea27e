package sampler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrUnsupportedColor is returned for color syntaxes ParseColor does not read.
var ErrUnsupportedColor = errors.New("unsupported color")

const (
	// minAlpha drops effectively transparent colors.
	minAlpha = 0.1
	// deadZone is the per-channel distance from 0 or 255 inside which a color
	// counts as near-black or near-white.
	deadZone = 16
)

// ParseColor reads a computed CSS color: rgb(), rgba(), the space-separated
// rgb(r g b / a) form, #rgb, #rrggbb, and "transparent". It returns the
// opaque color and its alpha.
func ParseColor(raw string) (colorful.Color, float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "transparent":
		return colorful.Color{}, 0, nil
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(s)
		if err != nil {
			return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
		}
		return c, 1, nil
	case strings.HasPrefix(s, "rgb"):
		return parseRGBFunc(s, raw)
	default:
		return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
	}
}

func parseRGBFunc(s, raw string) (colorful.Color, float64, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
	}
	body := s[open+1 : len(s)-1]
	body = strings.NewReplacer(",", " ", "/", " ").Replace(body)
	parts := strings.Fields(body)
	if len(parts) != 3 && len(parts) != 4 {
		return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
	}

	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := parseChannel(parts[i])
		if err != nil {
			return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(parts) == 4 {
		a, err := parseAlpha(parts[3])
		if err != nil {
			return colorful.Color{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, raw)
		}
		alpha = a
	}
	return colorful.Color{R: ch[0] / 255, G: ch[1] / 255, B: ch[2] / 255}, alpha, nil
}

func parseChannel(s string) (float64, error) {
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, err
		}
		return clamp(v*255/100, 0, 255), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp(v, 0, 255), nil
}

func parseAlpha(s string) (float64, error) {
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, err
		}
		return clamp(v/100, 0, 1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp(v, 0, 1), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Unusable reports colors in the near-white or near-black dead zone.
func Unusable(c colorful.Color) bool {
	r, g, b := c.Clamped().RGB255()
	nearBlack := r < deadZone && g < deadZone && b < deadZone
	nearWhite := r > 255-deadZone && g > 255-deadZone && b > 255-deadZone
	return nearBlack || nearWhite
}
