package render

import (
	"fmt"
	"strings"
)

// ScopeCSS prefixes every selector in the stylesheet with the widget's
// attribute selector, confining the rules to one widget's subtree. The
// transformation is textual: rules are split on braces, selector lists on
// commas. At-rules pass through with their inner rules scoped.
func ScopeCSS(css, widgetID string) string {
	prefix := fmt.Sprintf(`[data-widget-id=%q]`, widgetID)

	var sb strings.Builder
	rest := css
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			sb.WriteString(rest)
			break
		}
		selector := rest[:open]

		if strings.HasPrefix(strings.TrimSpace(selector), "@") {
			// Scope the block body of conditional at-rules, keep the
			// at-rule header itself untouched.
			closing := matchBrace(rest, open)
			if closing < 0 {
				sb.WriteString(rest)
				break
			}
			sb.WriteString(selector)
			sb.WriteString("{")
			sb.WriteString(ScopeCSS(rest[open+1:closing], widgetID))
			sb.WriteString("}")
			rest = rest[closing+1:]
			continue
		}

		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			sb.WriteString(rest)
			break
		}
		closing += open

		sb.WriteString(scopeSelectorList(selector, prefix))
		sb.WriteString(rest[open : closing+1])
		rest = rest[closing+1:]
	}
	return sb.String()
}

func scopeSelectorList(selectors, prefix string) string {
	leading := selectors[:len(selectors)-len(strings.TrimLeft(selectors, " \n\t"))]
	trailing := selectors[len(strings.TrimRight(selectors, " \n\t")):]

	parts := strings.Split(strings.TrimSpace(selectors), ",")
	for i, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts[i] = prefix + " " + trimmed
		}
	}
	return leading + strings.Join(parts, ", ") + trailing
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
