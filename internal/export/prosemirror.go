package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"strings"
)

// node is one element of a rich-text document as stored by the editor.
type node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs"`
	Content []node         `json:"content"`
	Text    string         `json:"text"`
	Marks   []mark         `json:"marks"`
}

type mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// DocToHTML renders a stored document. Empty or null documents render as
// nothing; malformed JSON is an error.
func DocToHTML(doc json.RawMessage) (template.HTML, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var root node
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	var b strings.Builder
	render(&b, root)
	return template.HTML(b.String()), nil
}

func render(b *strings.Builder, n node) {
	switch n.Type {
	case "text":
		b.WriteString(applyMarks(html.EscapeString(n.Text), n.Marks))
	case "paragraph":
		wrap(b, "p", n)
	case "heading":
		level := intAttr(n.Attrs, "level", 1)
		if level < 1 || level > 6 {
			level = 1
		}
		wrap(b, fmt.Sprintf("h%d", level), n)
	case "bulletList":
		wrap(b, "ul", n)
	case "orderedList":
		wrap(b, "ol", n)
	case "listItem":
		wrap(b, "li", n)
	case "taskList":
		b.WriteString(`<ul class="tasks">`)
		renderChildren(b, n)
		b.WriteString("</ul>\n")
	case "taskItem":
		box := "☐ "
		if checked, _ := n.Attrs["checked"].(bool); checked {
			box = "☑ "
		}
		b.WriteString("<li>" + box)
		renderChildren(b, n)
		b.WriteString("</li>\n")
	case "blockquote":
		wrap(b, "blockquote", n)
	case "codeBlock":
		b.WriteString("<pre><code>")
		for _, child := range n.Content {
			b.WriteString(html.EscapeString(child.Text))
		}
		b.WriteString("</code></pre>\n")
	case "table":
		wrap(b, "table", n)
	case "tableRow":
		wrap(b, "tr", n)
	case "tableCell":
		wrap(b, "td", n)
	case "tableHeader":
		wrap(b, "th", n)
	case "image":
		src, _ := n.Attrs["src"].(string)
		alt, _ := n.Attrs["alt"].(string)
		if safeURL(src) {
			fmt.Fprintf(b, `<img src="%s" alt="%s">`+"\n", html.EscapeString(src), html.EscapeString(alt))
		}
	case "hardBreak":
		b.WriteString("<br>")
	case "horizontalRule":
		b.WriteString("<hr>\n")
	default:
		renderChildren(b, n)
	}
}

func wrap(b *strings.Builder, tag string, n node) {
	b.WriteString("<" + tag + ">")
	renderChildren(b, n)
	b.WriteString("</" + tag + ">\n")
}

func renderChildren(b *strings.Builder, n node) {
	for _, child := range n.Content {
		render(b, child)
	}
}

// applyMarks wraps text so the first mark ends up outermost.
func applyMarks(text string, marks []mark) string {
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			text = "<strong>" + text + "</strong>"
		case "italic":
			text = "<em>" + text + "</em>"
		case "code":
			text = "<code>" + text + "</code>"
		case "strike":
			text = "<s>" + text + "</s>"
		case "underline":
			text = "<u>" + text + "</u>"
		case "highlight":
			text = "<mark>" + text + "</mark>"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			if safeURL(href) {
				text = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), text)
			}
		}
	}
	return text
}

func safeURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return false
	}
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "/") ||
		strings.HasPrefix(lower, "#")
}

func intAttr(attrs map[string]any, key string, fallback int) int {
	switch v := attrs[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
