package source

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/dabneyhovse/further/internal/resource"
)

const videoInfo = `{
	"title": "Example Song",
	"duration": 215.5,
	"uploader": "Example Artist",
	"webpage_url": "https://example.com/watch?v=abc123"
}`

const searchInfo = `{
	"_type": "playlist",
	"entries": [{
		"title": "First Hit",
		"duration": 90,
		"channel": "Some Channel",
		"webpage_url": "https://example.com/watch?v=hit1"
	}]
}`

func TestResolveURL(t *testing.T) {
	var gotArgs []string
	f := &Fetcher{bin: "yt-dlp", run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(videoInfo), nil
	}}

	src, err := f.Resolve(context.Background(), "https://example.com/watch?v=abc123", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Contains(gotArgs, "--no-playlist") {
		t.Errorf("args %v missing --no-playlist", gotArgs)
	}
	if gotArgs[len(gotArgs)-1] != "https://example.com/watch?v=abc123" {
		t.Errorf("target = %q", gotArgs[len(gotArgs)-1])
	}

	if src.Title() != "Example Song" {
		t.Errorf("title = %q", src.Title())
	}
	if got := src.Duration().Seconds(); got != 215.5 {
		t.Errorf("duration = %v, want 215.5", got)
	}
	role, name := src.Author()
	if role != "Uploader" || name != "Example Artist" {
		t.Errorf("author = %q/%q", role, name)
	}
}

func TestResolveSearchUnwrapsFirstEntry(t *testing.T) {
	var target string
	f := &Fetcher{bin: "yt-dlp", run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		target = args[len(args)-1]
		return []byte(searchInfo), nil
	}}

	src, err := f.Resolve(context.Background(), "example song", false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if target != "ytsearch1:example song" {
		t.Errorf("target = %q, want ytsearch1 prefix", target)
	}
	if src.Title() != "First Hit" {
		t.Errorf("title = %q", src.Title())
	}
	role, name := src.Author()
	if role != "Channel" || name != "Some Channel" {
		t.Errorf("author = %q/%q", role, name)
	}
}

func TestDownloadFindsProducedFile(t *testing.T) {
	h, err := resource.NewHandler(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.Claim()
	if err != nil {
		t.Fatal(err)
	}

	f := &Fetcher{bin: "yt-dlp", run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if args[0] == "-J" {
			return []byte(videoInfo), nil
		}
		// Simulate yt-dlp writing its extracted audio.
		return nil, os.WriteFile(filepath.Join(res.Path(), "abc123.opus"), []byte("audio"), 0o644)
	}}

	src, err := f.Resolve(context.Background(), "https://example.com/watch?v=abc123", true)
	if err != nil {
		t.Fatal(err)
	}
	path, err := src.Download(context.Background(), res)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "abc123.opus" {
		t.Errorf("path = %q", path)
	}
}

func TestDurationRendering(t *testing.T) {
	tests := []struct {
		d    Duration
		want string
	}{
		{Seconds(215.5), "3:36"},
		{Finite(time.Hour + 2*time.Minute + 3*time.Second), "1:02:03"},
		{Seconds(0), "0:00"},
		{Infinite(), "∞"},
		{Unknown(), "?"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.d.Seconds(), got, tt.want)
		}
	}
}

func TestDurationArithmetic(t *testing.T) {
	if got := Seconds(60).Add(Infinite()); !got.IsInfinite() {
		t.Error("finite + infinite should be infinite")
	}
	if got := Seconds(60).Add(Unknown()); !got.IsUnknown() {
		t.Error("finite + unknown should be unknown")
	}
	if got := Seconds(120).Scale(2).Seconds(); got != 60 {
		t.Errorf("120s at rate 2 = %v, want 60", got)
	}
	if !Seconds(60).Scale(0).IsUnknown() {
		t.Error("scale by 0 should be unknown")
	}
}
