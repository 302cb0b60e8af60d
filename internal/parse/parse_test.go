package parse

import (
	"math"
	"strings"
	"testing"

	"github.com/dabneyhovse/further/internal/dsp"
)

func mustParse(t *testing.T, line string) Request {
	t.Helper()
	req, err := Parse(strings.Fields(line), false)
	if err != nil {
		t.Fatalf("Parse(%q): %v", line, err)
	}
	return req
}

func TestParsePlainSearch(t *testing.T) {
	req := mustParse(t, "example song title")
	if req.Kind != KindSearch {
		t.Errorf("kind = %v, want KindSearch", req.Kind)
	}
	if req.Query != "example song title" {
		t.Errorf("query = %q", req.Query)
	}
	if req.DSP != dsp.DefaultSettings() {
		t.Errorf("settings modified on plain request: %+v", req.DSP)
	}
}

func TestParsePitchAndSpeed(t *testing.T) {
	// {pitch: 2} {speed: 1.5} needs the ffmpeg pass; the player plays at
	// its natural rate.
	req := mustParse(t, "{pitch: 2} {speed: 1.5} example")
	if req.DSP.PitchShift != 2 || req.DSP.TempoScale != 1.5 {
		t.Errorf("settings = %+v", req.DSP)
	}
	if !req.DSP.RequiresFFmpeg() {
		t.Error("RequiresFFmpeg = false, want true")
	}
	if got := req.DSP.PlayerFallback().TempoScale; got != 1 {
		t.Errorf("player tempo = %v, want 1", got)
	}
	if req.Query != "example" {
		t.Errorf("query = %q, want %q", req.Query, "example")
	}
}

func TestParseSpeedOnlySkipsFFmpeg(t *testing.T) {
	req := mustParse(t, "{speed: 0.8} example")
	if req.DSP.TempoScale != 0.8 {
		t.Errorf("tempo = %v, want 0.8", req.DSP.TempoScale)
	}
	if req.DSP.RequiresFFmpeg() {
		t.Error("RequiresFFmpeg = true, want false")
	}
	if got := req.DSP.PlayerFallback().TempoScale; got != 0.8 {
		t.Errorf("player tempo = %v, want 0.8", got)
	}
}

func TestParseMultiWordDirective(t *testing.T) {
	req := mustParse(t, "{Pitch Shift: -12} song")
	if req.DSP.PitchShift != -12 {
		t.Errorf("pitch = %v, want -12", req.DSP.PitchShift)
	}
}

func TestParseSlowInverts(t *testing.T) {
	req := mustParse(t, "{slow: 2} song")
	if req.DSP.TempoScale != 0.5 {
		t.Errorf("tempo = %v, want 0.5", req.DSP.TempoScale)
	}
}

func TestParseTempoBindsToSpeedUp(t *testing.T) {
	// "tempo" appears in both scale rows; declaration order says it scales,
	// not stretches.
	req := mustParse(t, "{tempo: 2} song")
	if req.DSP.TempoScale != 2 {
		t.Errorf("tempo = %v, want 2", req.DSP.TempoScale)
	}
}

func TestParseNightcore(t *testing.T) {
	req := mustParse(t, "{nightcore} song")
	if want := 12 * math.Log2(1.35); math.Abs(req.DSP.PitchShift-want) > 1e-12 {
		t.Errorf("pitch = %v, want %v", req.DSP.PitchShift, want)
	}
	if req.DSP.TempoScale != 1.35 {
		t.Errorf("tempo = %v, want 1.35", req.DSP.TempoScale)
	}
}

func TestParseFlags(t *testing.T) {
	req := mustParse(t, "{loop} {echo} {metal} {reverb} song")
	if !req.DSP.Loop || !req.DSP.Echo || !req.DSP.Metal || !req.DSP.Reverb {
		t.Errorf("flags = %+v", req.DSP)
	}
}

func TestParseURLDetection(t *testing.T) {
	req := mustParse(t, "https://example.com/watch?v=abc123")
	if req.Kind != KindURL {
		t.Errorf("kind = %v, want KindURL", req.Kind)
	}
}

func TestParseRejectsPlaylists(t *testing.T) {
	for _, link := range []string{
		"https://www.youtube.com/playlist?list=PL123",
		"https://www.youtube.com/watch?v=abc&list=PL123",
	} {
		_, err := Parse([]string{link}, false)
		if msg, ok := AsUserError(err); !ok || !strings.Contains(msg, "Playlists") {
			t.Errorf("Parse(%q) = %v, want playlist rejection", link, err)
		}
	}
}

func TestParseBlobWins(t *testing.T) {
	req, err := Parse([]string{"{echo}"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if req.Kind != KindUpload {
		t.Errorf("kind = %v, want KindUpload", req.Kind)
	}
	if !req.DSP.Echo {
		t.Error("echo not applied on blob request")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"empty", "", "Nothing to queue"},
		{"bad float", "{pitch: two} song", "Couldn't parse float"},
		{"pitch out of range", "{pitch: 25} song", "Max freq shift"},
		{"tempo out of range", "{speed: 5} song", "range [0.25, 4]"},
		{"unknown directive", "{bitcrush} song", "Unknown postprocessing command"},
		{"unterminated", "{pitch: 2 song", "Unterminated"},
		{"flag with value", "{loop: 2} song", "does not take a value"},
		{"scale without value", "{speed} song", "needs a value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.Fields(tt.line), false)
			msg, ok := AsUserError(err)
			if !ok {
				t.Fatalf("Parse(%q) = %v, want user error", tt.line, err)
			}
			if !strings.Contains(msg, tt.want) {
				t.Errorf("message %q does not contain %q", msg, tt.want)
			}
		})
	}
}

func TestUnknownDirectiveSuggestion(t *testing.T) {
	_, err := Parse([]string{"{ecko}", "song"}, false)
	msg, ok := AsUserError(err)
	if !ok {
		t.Fatalf("err = %v, want user error", err)
	}
	if !strings.Contains(msg, `did you mean "echo"`) {
		t.Errorf("message %q lacks suggestion", msg)
	}
}
