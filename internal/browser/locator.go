package browser

import (
	"fmt"
	"strings"
)

// LocatorKind selects how a Locator's Value is interpreted.
type LocatorKind string

const (
	ByCSS   LocatorKind = "css"
	ByXPath LocatorKind = "xpath"
	// ByText matches the innermost element whose text contains Value.
	ByText LocatorKind = "text"
	// ByAria matches elements whose aria-label contains Value.
	ByAria LocatorKind = "aria"
)

// Locator is one strategy for finding an element. Surfaces carry ordered
// lists of locators that are tried until one matches.
type Locator struct {
	Name  string
	Kind  LocatorKind
	Value string
}

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%s:%s", l.Kind, l.Value)
}

// query returns the selector and whether it is XPath (true) or CSS (false).
func (l Locator) query() (string, bool) {
	switch l.Kind {
	case ByXPath:
		return l.Value, true
	case ByText:
		return fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathLiteral(l.Value)), true
	case ByAria:
		return fmt.Sprintf("//*[contains(@aria-label, %s)]", xpathLiteral(l.Value)), true
	default:
		return l.Value, false
	}
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
