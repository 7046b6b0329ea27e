package sampler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Logo candidate kinds.
const (
	LogoTypeFavicon    = "favicon"
	LogoTypeTouchIcon  = "apple-touch-icon"
	LogoTypeLogo       = "logo"
	LogoTypeOpenGraph  = "og-image"
	defaultFaviconPath = "/favicon.ico"
)

// LogoCandidate is an image URL that may identify the brand.
type LogoCandidate struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// ExtractLogos finds icon links, logo images and the Open Graph image in a
// rendered document. When no icon link is declared, the conventional
// /favicon.ico is proposed. Results are absolute http(s) URLs in document
// order without duplicates.
func ExtractLogos(pageURL, document string) ([]LogoCandidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var out []LogoCandidate
	seen := make(map[string]struct{})
	add := func(raw, kind string) {
		ref, perr := url.Parse(strings.TrimSpace(raw))
		if perr != nil || raw == "" {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		key := abs.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, LogoCandidate{URL: key, Type: kind})
	}

	hasIcon := false
	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		href := s.AttrOr("href", "")
		switch {
		case strings.Contains(rel, "apple-touch-icon"):
			add(href, LogoTypeTouchIcon)
		case strings.Contains(rel, "icon"):
			hasIcon = true
			add(href, LogoTypeFavicon)
		}
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		hint := strings.ToLower(strings.Join([]string{
			s.AttrOr("alt", ""), s.AttrOr("class", ""), s.AttrOr("id", ""), s.AttrOr("src", ""),
		}, " "))
		inBrandSlot := s.ParentsFiltered("header, nav, .logo, .brand, .navbar-brand").Length() > 0
		if strings.Contains(hint, "logo") || (inBrandSlot && strings.Contains(hint, "brand")) {
			add(s.AttrOr("src", ""), LogoTypeLogo)
		}
	})

	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		add(og, LogoTypeOpenGraph)
	}

	if !hasIcon {
		add(defaultFaviconPath, LogoTypeFavicon)
	}
	return out, nil
}
