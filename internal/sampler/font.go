package sampler

import (
	"strconv"
	"strings"
)

// FontInfo is a representative font declaration.
type FontInfo struct {
	Family    string   `json:"family"`
	Fallbacks []string `json:"fallbacks,omitempty"`
	Weight    int      `json:"weight"`
}

// IsZero reports whether no font was captured.
func (f FontInfo) IsZero() bool {
	return f.Family == ""
}

// ParseFont splits a computed font-family list and normalizes the weight.
func ParseFont(raw RawFont) FontInfo {
	var families []string
	for _, part := range strings.Split(raw.Family, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"'`)
		if name != "" {
			families = append(families, name)
		}
	}
	if len(families) == 0 {
		return FontInfo{}
	}
	info := FontInfo{Family: families[0], Weight: parseWeight(raw.Weight)}
	if len(families) > 1 {
		info.Fallbacks = families[1:]
	}
	return info
}

func parseWeight(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "normal":
		return 400
	case "bold":
		return 700
	case "lighter":
		return 300
	case "bolder":
		return 800
	}
	w, err := strconv.Atoi(s)
	if err != nil || w < 1 || w > 1000 {
		return 400
	}
	return w
}
