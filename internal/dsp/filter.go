package dsp

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// sampleRate is the rate the asetrate/aresample pitch-shift pair is anchored
// to. Sources are resampled back to it after the rate trick.
const sampleRate = 44100

// echoArgs renders an aecho parameter tuple: in-gain, out-gain and the
// pipe-separated delay and decay lists.
func echoArgs(inGain, outGain float64, delays, decays []float64) string {
	formatAll := func(vs []float64) string {
		parts := make([]string, len(vs))
		for i, v := range vs {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strings.Join(parts, "|")
	}
	return fmt.Sprintf("aecho=%g:%g:%s:%s", inGain, outGain, formatAll(delays), formatAll(decays))
}

func echoPreset() string {
	return echoArgs(0.6, 0.3,
		[]float64{100, 200, 300},
		[]float64{0.5, 0.25, 0.125})
}

func metalPreset() string {
	return echoArgs(0.8, 0.88, []float64{20, 40}, []float64{0.8, 0.4})
}

func reverbPreset() string {
	delays := make([]float64, 31)
	decays := make([]float64, 31)
	for i := 1; i <= 31; i++ {
		delays[i-1] = float64(8 * i)
		decays[i-1] = pow(0.95, i)
	}
	return echoArgs(0.8, 0.88, delays, decays)
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// FilterChain builds the ffmpeg -af argument for the settings, and returns
// the playback-engine settings left over for transforms the chain does not
// absorb. When the pitch is unshifted there is no atempo pass, so the tempo
// (absolute value) falls through to the player's rate control.
func (s Settings) FilterChain() (chain string, player PlayerSettings) {
	player = DefaultPlayerSettings()

	var filters []string
	if s.TempoScale < 0 {
		filters = append(filters, "areverse")
	}
	if s.PitchShift != 0 {
		scale := s.PitchScale()
		filters = append(filters,
			fmt.Sprintf("asetrate=%g", sampleRate*scale),
			fmt.Sprintf("aresample=%d", sampleRate),
			fmt.Sprintf("atempo=%g", abs(s.TempoScale)/scale),
		)
	} else {
		player.TempoScale = abs(s.TempoScale)
	}
	if s.Echo {
		filters = append(filters, echoPreset())
	}
	if s.Metal {
		filters = append(filters, metalPreset())
	}
	if s.Reverb {
		filters = append(filters, reverbPreset())
	}

	return strings.Join(filters, ","), player
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Process runs the settings' filter chain over srcPath with the given ffmpeg
// executable, writing the result to destPath. It returns the leftover
// playback settings from [Settings.FilterChain]. The caller is expected to
// gate on [Settings.RequiresFFmpeg]; calling Process with an empty chain is
// an error.
func Process(ctx context.Context, ffmpegBin, srcPath, destPath string, s Settings) (PlayerSettings, error) {
	chain, player := s.FilterChain()
	if chain == "" {
		return player, fmt.Errorf("dsp: empty filter chain for %v", s)
	}

	cmd := exec.CommandContext(ctx, ffmpegBin,
		"-i", srcPath,
		"-af", chain,
		"-y",
		destPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return player, ctx.Err()
		}
		return player, fmt.Errorf("dsp: ffmpeg: %w: %s", err, tail(out, 512))
	}
	return player, nil
}

// tail returns at most n trailing bytes of ffmpeg output for error messages.
func tail(out []byte, n int) string {
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		s = "…" + s[len(s)-n:]
	}
	return s
}
