package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/brandscan/internal/palette"
	"github.com/JakeFAU/brandscan/internal/sampler"
)

var brandPalette = palette.Palette{
	Primary:    "#0066ff",
	Secondary:  "#ff5722",
	Accent:     "#22aa44",
	Neutral:    "#555555",
	Foreground: "#222222",
	Background: "#fafafa",
}

func TestAssembleDefaults(t *testing.T) {
	t.Parallel()

	got := Assemble(Input{Palette: brandPalette})
	require.Equal(t, brandPalette, got.Color)
	require.Equal(t, "system-ui", got.Font.Body.Family)
	require.Equal(t, systemStack, got.Font.Body.Stack)
	require.Equal(t, DefaultBodyWeight, got.Font.Body.Weight)
	require.Equal(t, "system-ui", got.Font.Heading.Family)
	require.Equal(t, DefaultHeadWeight, got.Font.Heading.Weight)
	require.Equal(t, []string{"0.8rem", "1rem", "1.25rem", "1.563rem", "1.953rem", "2.441rem"}, got.Font.Scale)
	require.Equal(t, Radius{SM: "4px", MD: "8px", LG: "12px", XL: "16px"}, got.Radius)
	require.Equal(t, Spacing{
		Base:  "16px",
		Steps: []string{"4px", "8px", "16px", "24px", "32px", "48px", "64px"},
	}, got.Spacing)
	require.Equal(t, defaultShadows, got.Shadow)
	require.Equal(t, Border{Width: "1px", Style: "solid"}, got.Border)
}

func TestAssembleUsesSignals(t *testing.T) {
	t.Parallel()

	got := Assemble(Input{
		Palette:     brandPalette,
		BodyFont:    sampler.FontInfo{Family: "Inter", Fallbacks: []string{"Arial", "sans-serif"}, Weight: 300},
		HeadingFont: sampler.FontInfo{Family: "Playfair Display", Weight: 800},
		Radius:      "6px",
		SpacingBase: "0.75rem",
		Shadow:      "rgba(0, 0, 0, 0.2) 0px 2px 8px 0px",
		Border:      sampler.Border{Width: "2px", Style: "dashed"},
	})

	require.Equal(t, "Inter", got.Font.Body.Family)
	require.Equal(t, []string{"Inter", "Arial", "sans-serif", "system-ui", "-apple-system", "Segoe UI", "Roboto", "Helvetica Neue"}, got.Font.Body.Stack)
	require.Equal(t, 300, got.Font.Body.Weight)
	require.Equal(t, "Playfair Display", got.Font.Heading.Family)
	require.Equal(t, 800, got.Font.Heading.Weight)
	require.Equal(t, Radius{SM: "3px", MD: "6px", LG: "9px", XL: "12px"}, got.Radius)
	require.Equal(t, "12px", got.Spacing.Base)
	require.Equal(t, "3px", got.Spacing.Steps[0])
	require.Equal(t, "rgba(0, 0, 0, 0.2) 0px 2px 8px 0px", got.Shadow.MD)
	require.Equal(t, defaultShadows.SM, got.Shadow.SM)
	require.Equal(t, Border{Width: "2px", Style: "dashed"}, got.Border)
}

func TestAssembleHeadingFallsBackToBody(t *testing.T) {
	t.Parallel()

	got := Assemble(Input{BodyFont: sampler.FontInfo{Family: "Lato", Weight: 400}})
	require.Equal(t, "Lato", got.Font.Heading.Family)
	require.Equal(t, DefaultHeadWeight, got.Font.Heading.Weight)
}

func TestParsePx(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"10px":    10,
		" 1.5REM": 24,
		"":        7,
		"50%":     7,
		"-4px":    7,
		"abcpx":   7,
	}
	for raw, want := range cases {
		require.InDelta(t, want, parsePx(raw, 7), 1e-9, raw)
	}
}

func TestInputFromPools(t *testing.T) {
	t.Parallel()

	pools := sampler.Pools{
		BodyFont:    sampler.FontInfo{Family: "Inter"},
		Radius:      "4px",
		SpacingBase: "8px",
		Shadow:      "0 0 1px red",
		Border:      sampler.Border{Width: "1px", Style: "solid"},
	}
	in := InputFromPools(brandPalette, pools)
	require.Equal(t, brandPalette, in.Palette)
	require.Equal(t, "Inter", in.BodyFont.Family)
	require.Equal(t, "4px", in.Radius)
	require.Equal(t, "8px", in.SpacingBase)
	require.Equal(t, "0 0 1px red", in.Shadow)
}

func TestExportsAreDeterministic(t *testing.T) {
	t.Parallel()

	tokens := Assemble(Input{
		Palette:  brandPalette,
		BodyFont: sampler.FontInfo{Family: "Open Sans", Fallbacks: []string{"Arial"}},
	})

	css1, err := CSSVars(tokens)
	require.NoError(t, err)
	css2, err := CSSVars(tokens)
	require.NoError(t, err)
	require.Equal(t, css1, css2)

	cfg1, err := ThemeConfig(tokens)
	require.NoError(t, err)
	cfg2, err := ThemeConfig(tokens)
	require.NoError(t, err)
	require.Equal(t, cfg1, cfg2)
}

func TestCSSVars(t *testing.T) {
	t.Parallel()

	css, err := CSSVars(Assemble(Input{
		Palette:  brandPalette,
		BodyFont: sampler.FontInfo{Family: "Open Sans"},
	}))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(css, ":root {\n  --color-primary: #0066ff;\n"))
	require.True(t, strings.HasSuffix(css, "  --border-style: solid;\n}\n"))
	require.Contains(t, css, `  --font-body: "Open Sans", system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;`)
	require.Contains(t, css, "  --font-size-base: 1rem;\n")
	require.Contains(t, css, "  --spacing-3: 16px;\n")
	require.Contains(t, css, "  --radius-md: 8px;\n")
	require.NotContains(t, css, "\n\n")
}

func TestThemeConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ThemeConfig(Assemble(Input{Palette: brandPalette}))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cfg, "module.exports = {\n"))
	require.Contains(t, cfg, `        primary: "#0066ff",`)
	require.Contains(t, cfg, `        body: ["system-ui", "-apple-system", "Segoe UI", "Roboto", "Helvetica Neue", "Arial", "sans-serif"],`)
	require.Contains(t, cfg, `        "2xl": "1.953rem",`)
	require.Contains(t, cfg, `        "7": "64px",`)
	require.Contains(t, cfg, `        DEFAULT: "8px",`)
	require.True(t, strings.HasSuffix(cfg, "};\n"))
}

func TestCSSVarsEscapesHostileFontNames(t *testing.T) {
	t.Parallel()

	css, err := CSSVars(Assemble(Input{
		Palette: brandPalette,
		BodyFont: sampler.FontInfo{
			Family:    `a;}body{display:none}`,
			Fallbacks: []string{`x"\y`, "serif"},
		},
		HeadingFont: sampler.FontInfo{Family: "Evil\n</style>"},
	}))
	require.NoError(t, err)
	require.Contains(t, css, `  --font-body: "a;}body{display:none}", "x\22 \5c y", serif, system-ui,`)
	require.Contains(t, css, `  --font-heading: "Evil\a \3c /style\3e ", system-ui,`)
	require.Equal(t, 1, strings.Count(css, "}\n"), "only the :root block may close")
	require.NotContains(t, css, "</style>")
}

func TestCSSFamilyIdentifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{name: "Roboto", want: "Roboto"},
		{name: "-apple-system", want: "-apple-system"},
		{name: "sans-serif", want: "sans-serif"},
		{name: "Segoe UI", want: `"Segoe UI"`},
		{name: "3Dumb", want: `"3Dumb"`},
		{name: "--custom", want: `"--custom"`},
		{name: "Noto Sans JP", want: `"Noto Sans JP"`},
		{name: "a;b", want: `"a;b"`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, cssFamilies([]string{tt.name}), tt.name)
	}
}

func TestAssembleDropsUnsafeDeclarationValues(t *testing.T) {
	t.Parallel()

	got := Assemble(Input{
		Palette: brandPalette,
		Shadow:  "0 0 1px red;}body{display:none",
		Border:  sampler.Border{Width: "1px;}", Style: "solid;x"},
	})
	require.Equal(t, defaultShadows, got.Shadow)
	require.Equal(t, Border{Width: "1px", Style: "solid"}, got.Border)

	got = Assemble(Input{
		Palette: brandPalette,
		Shadow:  "rgba(0, 0, 0, 0.2) 0px 2px 8px 0px",
		Border:  sampler.Border{Width: "2px", Style: "dashed"},
	})
	require.Equal(t, "rgba(0, 0, 0, 0.2) 0px 2px 8px 0px", got.Shadow.MD)
	require.Equal(t, Border{Width: "2px", Style: "dashed"}, got.Border)
}
