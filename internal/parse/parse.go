// Package parse turns the raw argument vector of a queue command into an
// audio-source descriptor plus a DSP settings record.
//
// The grammar splits on whitespace. A brace block starts at a token whose
// first character is '{' and ends at a token whose last character is '}';
// interior tokens are joined with single spaces. Each block is "key" or
// "key: value" with the key matched case-insensitively against a synonym
// table. Every non-block token joins the free-text query. Parse errors are
// user errors: they abort the request with a single message and apply no
// partial settings.
package parse

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/dabneyhovse/further/internal/dsp"
)

// SourceKind classifies where the requested audio comes from.
type SourceKind int

const (
	// KindSearch resolves the free text through a media search.
	KindSearch SourceKind = iota

	// KindURL fetches the free text as a direct link.
	KindURL

	// KindUpload downloads a chat-attached media blob.
	KindUpload
)

// Request is a parsed queue command.
type Request struct {
	Kind  SourceKind
	Query string
	DSP   dsp.Settings
}

// UserError is a parse failure whose message is meant for the requesting
// user, not the logs.
type UserError struct {
	msg string
}

func (e *UserError) Error() string { return e.msg }

func userErrorf(format string, args ...any) error {
	return &UserError{msg: fmt.Sprintf(format, args...)}
}

// AsUserError reports whether err is user-visible and returns its message.
func AsUserError(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.msg, true
	}
	return "", false
}

// directive is one row of the DSP directive table. Rows are matched in
// declaration order, so ambiguous synonyms ("tempo") bind to the earliest
// row that lists them.
type directive struct {
	canonical string
	synonyms  []string
	takesArg  bool
	apply     func(s *dsp.Settings, v float64) error
}

var directives = []directive{
	{
		canonical: "pitch",
		synonyms: []string{"pitch", "freq", "frequency", "pitch shift", "pitch adjust",
			"freq shift", "freq adjust", "frequency shift", "frequency adjust"},
		takesArg: true,
		apply: func(s *dsp.Settings, v float64) error {
			if v < -24 || v > 24 {
				return userErrorf("Max freq shift is 2 octaves")
			}
			s.PitchShift = v
			return nil
		},
	},
	{
		canonical: "speed",
		synonyms: []string{"contract", "quicken", "time contract", "speed", "time scale",
			"scale time", "contract time", "speed scale", "tempo scale", "tempo",
			"scale tempo", "tempo adjust", "speed adjust", "speed up",
			"playback speed", "playback rate", "playback tempo"},
		takesArg: true,
		apply: func(s *dsp.Settings, v float64) error {
			if err := checkTempoRange(v, "Time scale"); err != nil {
				return err
			}
			s.TempoScale = v
			return nil
		},
	},
	{
		canonical: "slow",
		synonyms: []string{"stretch", "elongate", "time stretch", "slow", "time slow",
			"slow time", "stretch time", "tempo slow", "tempo", "slow tempo", "slow down"},
		takesArg: true,
		apply: func(s *dsp.Settings, v float64) error {
			if err := checkTempoRange(v, "Time stretch"); err != nil {
				return err
			}
			s.TempoScale = 1 / v
			return nil
		},
	},
	{
		canonical: "nightcore",
		synonyms:  []string{"nightcore", "night-core", "sped up", "sped-up"},
		apply: func(s *dsp.Settings, _ float64) error {
			s.PitchShift = 12 * math.Log2(1.35)
			s.TempoScale = 1.35
			return nil
		},
	},
	{
		canonical: "loop",
		synonyms:  []string{"loop", "repeat", "loop forever"},
		apply: func(s *dsp.Settings, _ float64) error {
			s.Loop = true
			return nil
		},
	},
	{
		canonical: "echo",
		synonyms:  []string{"echo"},
		apply: func(s *dsp.Settings, _ float64) error {
			s.Echo = true
			return nil
		},
	},
	{
		canonical: "metal",
		synonyms:  []string{"metal"},
		apply: func(s *dsp.Settings, _ float64) error {
			s.Metal = true
			return nil
		},
	},
	{
		canonical: "reverb",
		synonyms:  []string{"reverb"},
		apply: func(s *dsp.Settings, _ float64) error {
			s.Reverb = true
			return nil
		},
	},
}

func checkTempoRange(v float64, label string) error {
	if a := math.Abs(v); a < 0.25 || a > 4 {
		return userErrorf("%s (absolute value) should be in the range [0.25, 4]", label)
	}
	return nil
}

// playlistURL matches URL shapes that point at a playlist rather than a
// single item.
var playlistURL = regexp.MustCompile(`(?i)(/playlist\b|[?&]list=)`)

// Parse consumes the argument tokens of a queue command. hasBlob reports
// whether a media blob is attached to the message; a blob wins over any
// free text.
func Parse(args []string, hasBlob bool) (Request, error) {
	settings := dsp.DefaultSettings()

	var query, block strings.Builder
	inBlock := false

	for _, arg := range args {
		if arg == "" {
			continue
		}
		switch {
		case arg[len(arg)-1] == '}' && (inBlock || arg[0] == '{'):
			block.WriteString(strings.TrimLeft(arg[:len(arg)-1], "{"))
			if err := applyDirective(&settings, block.String()); err != nil {
				return Request{}, err
			}
			block.Reset()
			inBlock = false
		case inBlock || arg[0] == '{':
			if inBlock {
				block.WriteByte(' ')
			}
			block.WriteString(strings.TrimLeft(arg, "{"))
			inBlock = true
		default:
			if query.Len() > 0 {
				query.WriteByte(' ')
			}
			query.WriteString(arg)
		}
	}
	if inBlock {
		return Request{}, userErrorf("Unterminated directive: {%s", block.String())
	}

	req := Request{Query: query.String(), DSP: settings}
	switch {
	case hasBlob:
		req.Kind = KindUpload
	case req.Query == "":
		return Request{}, userErrorf("Nothing to queue: give me a link, a search term, or an audio file")
	case isURL(req.Query):
		if playlistURL.MatchString(req.Query) {
			return Request{}, userErrorf("Playlists are not supported")
		}
		req.Kind = KindURL
	default:
		req.Kind = KindSearch
	}
	return req, nil
}

// applyDirective parses one brace-block body ("key" or "key: value") and
// applies it to the settings.
func applyDirective(settings *dsp.Settings, body string) error {
	key, valueStr, hasValue := strings.Cut(body, ":")
	key = foldKey(key)
	valueStr = strings.TrimSpace(valueStr)

	for _, d := range directives {
		if !matchesSynonym(d, key) {
			continue
		}
		if d.takesArg != hasValue {
			if d.takesArg {
				return userErrorf("Directive %q needs a value, e.g. {%s: 1.5}", key, d.canonical)
			}
			return userErrorf("Directive %q does not take a value", key)
		}
		var value float64
		if d.takesArg {
			var err error
			value, err = strconv.ParseFloat(valueStr, 64)
			if err != nil {
				return userErrorf("Couldn't parse float: %q", valueStr)
			}
		}
		return d.apply(settings, value)
	}

	msg := fmt.Sprintf("Unknown postprocessing command: %s", key)
	if suggestion := suggest(key); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return userErrorf("%s", msg)
}

func matchesSynonym(d directive, key string) bool {
	for _, syn := range d.synonyms {
		if key == syn {
			return true
		}
	}
	return false
}

// foldKey lower-cases a directive key and collapses internal whitespace so
// "Pitch   Shift" matches "pitch shift".
func foldKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

// suggest finds the closest known synonym within edit distance 2, for
// "did you mean" hints on unknown directives.
func suggest(key string) string {
	best, bestDist := "", 3
	for _, d := range directives {
		for _, syn := range d.synonyms {
			if dist := matchr.Levenshtein(key, syn); dist < bestDist {
				best, bestDist = syn, dist
			}
		}
	}
	return best
}

// isURL reports whether the query is a plausible direct link.
func isURL(query string) bool {
	if strings.ContainsAny(query, " \t") {
		return false
	}
	u, err := url.Parse(query)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
