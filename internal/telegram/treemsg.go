package telegram

import (
	"html"
	"strings"
)

// TreeMessage is a composable chat-message fragment rendered to Telegram
// HTML. Sequences separate their children by as many newlines as their
// nesting depth, so deeper structures get visually tighter grouping; Named
// nodes bold their key and indent sequence values.
type TreeMessage interface {
	render() string
	depth() int
	isSkip() bool
}

const treeIndent = "    "

// Text is a plain, HTML-escaped fragment.
type Text string

func (t Text) render() string { return html.EscapeString(string(t)) }
func (Text) depth() int       { return 0 }
func (Text) isSkip() bool     { return false }

// Code renders its content in an inline code span.
type Code string

func (c Code) render() string { return "<code>" + html.EscapeString(string(c)) + "</code>" }
func (Code) depth() int       { return 0 }
func (Code) isSkip() bool     { return false }

// Raw is a pre-rendered HTML fragment, inserted verbatim.
type Raw string

func (r Raw) render() string { return string(r) }
func (Raw) depth() int       { return 0 }
func (Raw) isSkip() bool     { return false }

// Skip renders to nothing and is dropped from sequences.
type Skip struct{}

func (Skip) render() string { return "" }
func (Skip) depth() int     { return 0 }
func (Skip) isSkip() bool   { return true }

// Seq joins its non-skip children.
type Seq []TreeMessage

func (s Seq) depth() int {
	max := 0
	for _, sub := range s {
		if d := sub.depth(); d > max {
			max = d
		}
	}
	return max + 1
}

func (s Seq) render() string {
	sep := strings.Repeat("\n", s.depth())
	parts := make([]string, 0, len(s))
	for _, sub := range s {
		if sub.isSkip() {
			continue
		}
		parts = append(parts, sub.render())
	}
	return strings.Join(parts, sep)
}

func (s Seq) isSkip() bool {
	for _, sub := range s {
		if !sub.isSkip() {
			return false
		}
	}
	return true
}

// Named prefixes a value with a bolded key. Sequence values move to their
// own indented block.
type Named struct {
	Key   string
	Value TreeMessage
}

func (n Named) depth() int   { return 0 }
func (n Named) isSkip() bool { return false }

func (n Named) render() string {
	key := "<b>" + html.EscapeString(n.Key) + ":</b>"
	if _, ok := n.Value.(Seq); ok {
		body := strings.ReplaceAll(n.Value.render(), "\n", "\n"+treeIndent)
		return key + "\n" + treeIndent + body
	}
	return key + " " + n.Value.render()
}

// When keeps msg if cond holds, and substitutes Skip otherwise.
func When(cond bool, msg TreeMessage) TreeMessage {
	if cond {
		return msg
	}
	return Skip{}
}

// Render flattens a tree message to Telegram HTML.
func Render(msg TreeMessage) string {
	return msg.render()
}
