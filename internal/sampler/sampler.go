// Package sampler extracts raw visual style signals from rendered pages.
package sampler

import (
	"context"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

// Evaluator runs a JavaScript expression in a page and decodes the result.
// browser.Page satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

// Sample is one distinct opaque color and its element count.
type Sample struct {
	Hex   string         `json:"hex"`
	Color colorful.Color `json:"-"`
	Count int            `json:"count"`
}

// Border is a representative border declaration.
type Border struct {
	Width string `json:"width"`
	Style string `json:"style"`
}

// PageSignals are the validated signals of one page.
type PageSignals struct {
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Foreground  []Sample `json:"foreground"`
	Background  []Sample `json:"background"`
	BodyFont    FontInfo `json:"body_font"`
	HeadingFont FontInfo `json:"heading_font"`
	Radius      string   `json:"radius,omitempty"`
	SpacingBase string   `json:"spacing_base,omitempty"`
	Shadow      string   `json:"shadow,omitempty"`
	Border      Border   `json:"border"`
}

// Sampler runs the in-page extraction.
type Sampler struct {
	logger *zap.Logger
}

// New builds a Sampler.
func New(logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{logger: logger.Named("sampler")}
}

// Sample extracts and validates the style signals of the page behind ev.
func (s *Sampler) Sample(ctx context.Context, pageURL string, ev Evaluator) (PageSignals, error) {
	var raw RawSignals
	if err := ev.Evaluate(ctx, extractionScript, &raw); err != nil {
		return PageSignals{}, fmt.Errorf("evaluate extraction: %w", err)
	}
	if err := raw.Validate(); err != nil {
		s.logger.Warn("extraction output rejected", zap.String("url", pageURL), zap.Error(err))
		return PageSignals{}, err
	}
	signals := s.fromRaw(pageURL, raw)
	s.logger.Debug("page sampled",
		zap.String("url", pageURL),
		zap.Int("foreground", len(signals.Foreground)),
		zap.Int("background", len(signals.Background)),
	)
	return signals, nil
}

func (s *Sampler) fromRaw(pageURL string, raw RawSignals) PageSignals {
	border := Border{Width: raw.BorderWidth, Style: raw.BorderStyle}
	if border.Style == "none" || border.Style == "hidden" {
		border = Border{}
	}
	shadow := raw.Shadow
	if shadow == "none" {
		shadow = ""
	}
	return PageSignals{
		URL:         pageURL,
		Title:       raw.Title,
		Foreground:  s.samples(pageURL, raw.Foreground),
		Background:  s.samples(pageURL, raw.Background),
		BodyFont:    ParseFont(raw.Body),
		HeadingFont: ParseFont(raw.Heading),
		Radius:      firstLength(raw.Radius),
		SpacingBase: firstLength(raw.Padding),
		Shadow:      shadow,
		Border:      border,
	}
}

// samples parses counts into opaque colors, merging entries that serialize
// to the same hex.
func (s *Sampler) samples(pageURL string, counts []ColorCount) []Sample {
	index := make(map[string]int, len(counts))
	out := make([]Sample, 0, len(counts))
	for _, cc := range counts {
		c, alpha, err := ParseColor(cc.Color)
		if err != nil {
			s.logger.Debug("skipping color", zap.String("url", pageURL), zap.String("color", cc.Color), zap.Error(err))
			continue
		}
		if alpha < minAlpha {
			continue
		}
		hex := c.Clamped().Hex()
		if i, ok := index[hex]; ok {
			out[i].Count += cc.Count
			continue
		}
		index[hex] = len(out)
		out = append(out, Sample{Hex: hex, Color: c, Count: cc.Count})
	}
	return out
}
