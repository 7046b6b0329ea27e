package sampler

import (
	"strings"
)

// Pools are the cross-page signal pools fed to clustering and token
// assembly.
type Pools struct {
	// Foreground and Background hold usable samples only, outside the dead zone.
	Foreground []Sample
	Background []Sample
	// DominantForeground and DominantBackground are the most used opaque colors
	// before dead-zone filtering; empty when a pool had no colors.
	DominantForeground string
	DominantBackground string

	BodyFont    FontInfo
	HeadingFont FontInfo
	Radius      string
	SpacingBase string
	Shadow      string
	Border      Border
	Pages       int
}

// ColorsExtracted counts distinct usable colors across both pools.
func (p Pools) ColorsExtracted() int {
	seen := make(map[string]struct{}, len(p.Foreground)+len(p.Background))
	for _, s := range p.Foreground {
		seen[s.Hex] = struct{}{}
	}
	for _, s := range p.Background {
		seen[s.Hex] = struct{}{}
	}
	return len(seen)
}

// Merge accumulates page signals in crawl order. Scalar signals come from the
// first page that has them; color counts are summed per hex.
func Merge(pages []PageSignals) Pools {
	var (
		pools        Pools
		allFG, allBG []Sample
	)
	for _, p := range pages {
		pools.Pages++
		allFG = accumulate(allFG, p.Foreground)
		allBG = accumulate(allBG, p.Background)
		if pools.BodyFont.IsZero() {
			pools.BodyFont = p.BodyFont
		}
		if pools.HeadingFont.IsZero() {
			pools.HeadingFont = p.HeadingFont
		}
		pools.Radius = firstNonEmpty(pools.Radius, p.Radius)
		pools.SpacingBase = firstNonEmpty(pools.SpacingBase, p.SpacingBase)
		pools.Shadow = firstNonEmpty(pools.Shadow, p.Shadow)
		if pools.Border.Style == "" {
			pools.Border = p.Border
		}
	}
	pools.DominantForeground = dominant(allFG)
	pools.DominantBackground = dominant(allBG)
	pools.Foreground = usable(allFG)
	pools.Background = usable(allBG)
	return pools
}

func accumulate(dst, src []Sample) []Sample {
	for _, s := range src {
		found := false
		for i := range dst {
			if dst[i].Hex == s.Hex {
				dst[i].Count += s.Count
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

// dominant returns the highest-count hex; ties go to the first seen.
func dominant(samples []Sample) string {
	best := -1
	for i, s := range samples {
		if best < 0 || s.Count > samples[best].Count {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return samples[best].Hex
}

func usable(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !Unusable(s.Color) {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}

// firstLength returns the first token of a computed multi-value length, or
// "" for zero values.
func firstLength(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "0px" || fields[0] == "0" {
		return ""
	}
	return fields[0]
}
