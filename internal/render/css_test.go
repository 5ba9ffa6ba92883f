package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeCSSSimpleRule(t *testing.T) {
	got := ScopeCSS(".bar { color: red; }", "widget_1_a")
	assert.Equal(t, `[data-widget-id="widget_1_a"] .bar { color: red; }`, got)
}

func TestScopeCSSSelectorList(t *testing.T) {
	got := ScopeCSS(".a, .b { margin: 0; }", "w1")
	assert.Equal(t, `[data-widget-id="w1"] .a, [data-widget-id="w1"] .b { margin: 0; }`, got)
}

func TestScopeCSSMultipleRules(t *testing.T) {
	css := ".a { x: 1; }\n.b { y: 2; }"
	got := ScopeCSS(css, "w1")
	assert.Contains(t, got, `[data-widget-id="w1"] .a { x: 1; }`)
	assert.Contains(t, got, `[data-widget-id="w1"] .b { y: 2; }`)
}

func TestScopeCSSAtRule(t *testing.T) {
	css := "@media (max-width: 600px) { .a { display: none; } }"
	got := ScopeCSS(css, "w1")
	assert.Contains(t, got, "@media (max-width: 600px)")
	assert.Contains(t, got, `[data-widget-id="w1"] .a { display: none; }`)
}

func TestScopeCSSEmptyInput(t *testing.T) {
	assert.Equal(t, "", ScopeCSS("", "w1"))
	assert.Equal(t, "no braces here", ScopeCSS("no braces here", "w1"))
}

func TestScopeCSSDifferentWidgetsDifferentScopes(t *testing.T) {
	a := ScopeCSS(".x { c: 1; }", "wa")
	b := ScopeCSS(".x { c: 1; }", "wb")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, `"wa"`)
	assert.Contains(t, b, `"wb"`)
}
