package worddiff

import (
	"html"
	"strings"
)

// Markup wraps a non-equal token so a consumer can identify its operation.
type Markup interface {
	Wrap(k Kind, token string) string
}

// MarkupFunc adapts a function to the Markup interface.
type MarkupFunc func(k Kind, token string) string

func (f MarkupFunc) Wrap(k Kind, token string) string { return f(k, token) }

// HTML wraps tokens in spans carrying the op as both a class and a data-op
// attribute, e.g. <span class="diff-insert" data-op="insert">there</span>.
// Every token is HTML-escaped, including equal tokens, which stay unwrapped.
// The result is safe to embed in a page as is; callers must not escape it
// again.
type HTML struct{}

func (HTML) Wrap(k Kind, token string) string {
	op := k.String()
	return `<span class="diff-` + op + `" data-op="` + op + `">` + html.EscapeString(token) + `</span>`
}

func (HTML) escape(token string) string { return html.EscapeString(token) }

// Brackets marks insertions as [+tok+] and deletions as [-tok-], for
// terminals and log lines. No token is escaped.
type Brackets struct{}

func (Brackets) Wrap(k Kind, token string) string {
	switch k {
	case Insert:
		return "[+" + token + "+]"
	case Delete:
		return "[-" + token + "-]"
	}
	return token
}

// escaper is implemented by markups whose bare tokens need escaping too.
type escaper interface {
	escape(token string) string
}

// Render aligns reference and hypothesis and joins every token with single
// spaces, wrapping Insert and Delete tokens with m. Equal tokens are never
// wrapped; they are escaped only when m escapes its tokens (HTML does).
func Render(reference, hypothesis string, m Markup) (string, error) {
	ops, err := Diff(reference, hypothesis)
	if err != nil {
		return "", err
	}
	return RenderOps(ops, m), nil
}

// RenderOps renders a precomputed alignment. A nil m defaults to HTML.
func RenderOps(ops []Op, m Markup) string {
	if m == nil {
		m = HTML{}
	}
	esc, _ := m.(escaper)

	parts := make([]string, len(ops))
	for i, op := range ops {
		switch {
		case op.Kind != Equal:
			parts[i] = m.Wrap(op.Kind, op.Token)
		case esc != nil:
			parts[i] = esc.escape(op.Token)
		default:
			parts[i] = op.Token
		}
	}
	return strings.Join(parts, " ")
}

// ParseMarkup resolves a markup name ("html", "brackets"). Unknown and empty
// names fall back to HTML.
func ParseMarkup(name string) Markup {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "brackets", "text":
		return Brackets{}
	}
	return HTML{}
}
