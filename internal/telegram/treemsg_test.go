package telegram

import (
	"strings"
	"testing"
)

func TestRenderText(t *testing.T) {
	if got := Render(Text("a < b & c")); got != "a &lt; b &amp; c" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderCode(t *testing.T) {
	if got := Render(Code("/q {pitch: 2}")); got != "<code>/q {pitch: 2}</code>" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderNamedInline(t *testing.T) {
	got := Render(Named{Key: "Title", Value: Text("Example Song")})
	if got != "<b>Title:</b> Example Song" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderNamedSequenceIndents(t *testing.T) {
	got := Render(Named{Key: "Queue", Value: Seq{
		Text("first"),
		Text("second"),
	}})
	want := "<b>Queue:</b>\n    first\n    second"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderSkipsDropped(t *testing.T) {
	got := Render(Seq{
		Text("kept"),
		Skip{},
		When(false, Text("conditional")),
		Text("also kept"),
	})
	if strings.Contains(got, "conditional") {
		t.Errorf("skipped fragment rendered: %q", got)
	}
	if got != "kept\nalso kept" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderNestedSequenceSpacing(t *testing.T) {
	// Outer depth 2: the outer separator doubles while inner stays single.
	got := Render(Seq{
		Seq{Text("a"), Text("b")},
		Seq{Text("c"), Text("d")},
	})
	want := "a\nb\n\nc\nd"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestWholeSkipSequenceIsSkip(t *testing.T) {
	msg := Seq{Skip{}, Skip{}}
	if !msg.isSkip() {
		t.Error("all-skip sequence should count as skip")
	}
	got := Render(Seq{Text("x"), msg})
	if got != "x" {
		t.Errorf("Render = %q", got)
	}
}
