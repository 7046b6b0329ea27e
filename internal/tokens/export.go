package tokens

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"
)

// Export names as stored and served.
const (
	CSSVarsName     = "theme.css"
	ThemeConfigName = "theme.config.js"
)

var funcs = template.FuncMap{
	"css":   cssFamilies,
	"quote": strconv.Quote,
	"list":  jsArray,
	"inc":   func(i int) int { return i + 1 },
	"step":  stepName,
}

var cssTemplate = template.Must(template.New(CSSVarsName).Funcs(funcs).Parse(`:root {
  --color-primary: {{.Color.Primary}};
  --color-secondary: {{.Color.Secondary}};
  --color-accent: {{.Color.Accent}};
  --color-neutral: {{.Color.Neutral}};
  --color-foreground: {{.Color.Foreground}};
  --color-background: {{.Color.Background}};
  --font-body: {{css .Font.Body.Stack}};
  --font-heading: {{css .Font.Heading.Stack}};
  --font-weight-body: {{.Font.Body.Weight}};
  --font-weight-heading: {{.Font.Heading.Weight}};
{{- range $i, $s := .Font.Scale}}
  --font-size-{{step $i}}: {{$s}};
{{- end}}
  --radius-sm: {{.Radius.SM}};
  --radius-md: {{.Radius.MD}};
  --radius-lg: {{.Radius.LG}};
  --radius-xl: {{.Radius.XL}};
  --spacing-base: {{.Spacing.Base}};
{{- range $i, $s := .Spacing.Steps}}
  --spacing-{{inc $i}}: {{$s}};
{{- end}}
  --shadow-sm: {{.Shadow.SM}};
  --shadow-md: {{.Shadow.MD}};
  --shadow-lg: {{.Shadow.LG}};
  --border-width: {{.Border.Width}};
  --border-style: {{.Border.Style}};
}
`))

var configTemplate = template.Must(template.New(ThemeConfigName).Funcs(funcs).Parse(`module.exports = {
  theme: {
    extend: {
      colors: {
        primary: {{quote .Color.Primary}},
        secondary: {{quote .Color.Secondary}},
        accent: {{quote .Color.Accent}},
        neutral: {{quote .Color.Neutral}},
        foreground: {{quote .Color.Foreground}},
        background: {{quote .Color.Background}},
      },
      fontFamily: {
        body: {{list .Font.Body.Stack}},
        heading: {{list .Font.Heading.Stack}},
      },
      fontSize: {
{{- range $i, $s := .Font.Scale}}
        {{quote (step $i)}}: {{quote $s}},
{{- end}}
      },
      borderRadius: {
        sm: {{quote .Radius.SM}},
        DEFAULT: {{quote .Radius.MD}},
        lg: {{quote .Radius.LG}},
        xl: {{quote .Radius.XL}},
      },
      spacing: {
{{- range $i, $s := .Spacing.Steps}}
        {{quote (printf "%d" (inc $i))}}: {{quote $s}},
{{- end}}
      },
      boxShadow: {
        sm: {{quote .Shadow.SM}},
        DEFAULT: {{quote .Shadow.MD}},
        lg: {{quote .Shadow.LG}},
      },
      borderWidth: {
        DEFAULT: {{quote .Border.Width}},
      },
    },
  },
};
`))

// CSSVars renders t as a :root block of custom properties.
func CSSVars(t ThemeTokens) (string, error) {
	return render(cssTemplate, t)
}

// ThemeConfig renders t as a Tailwind-style theme config module.
func ThemeConfig(t ThemeTokens) (string, error) {
	return render(configTemplate, t)
}

func render(tmpl *template.Template, t ThemeTokens) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// cssFamilies joins a font stack, leaving plain identifiers bare and
// emitting every other name as an escaped CSS string.
func cssFamilies(stack []string) string {
	out := make([]string, len(stack))
	for i, name := range stack {
		if isCSSIdent(name) {
			out[i] = name
		} else {
			out[i] = cssString(name)
		}
	}
	return strings.Join(out, ", ")
}

// isCSSIdent reports whether s is an ASCII CSS identifier.
func isCSSIdent(s string) bool {
	if s == "" || strings.HasPrefix(s, "--") {
		return false
	}
	rest := strings.TrimPrefix(s, "-")
	if rest == "" || rest[0] >= '0' && rest[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// cssString quotes s as a CSS string. Quotes, backslashes, control
// characters and angle brackets become hex escapes.
func cssString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\' || r == '<' || r == '>' || r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		case r == utf8.RuneError:
			b.WriteString("\\fffd ")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func stepName(i int) string {
	if i >= 0 && i < len(TypeScaleNames) {
		return TypeScaleNames[i]
	}
	return strconv.Itoa(i)
}

func jsArray(list []string) string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(out, ", ") + "]"
}
