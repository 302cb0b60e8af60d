package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dabneyhovse/further/internal/resource"
)

// runner executes an external command and returns its stdout. Swapped out
// in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.Bytes(), 400))
	}
	return stdout.Bytes(), nil
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}

// Fetcher resolves remote queries and downloads audio through yt-dlp.
type Fetcher struct {
	bin string
	run runner
}

// NewFetcher returns a Fetcher shelling out to the given yt-dlp executable.
func NewFetcher(bin string) *Fetcher {
	return &Fetcher{bin: bin, run: execRunner}
}

// ytdlpInfo is the subset of yt-dlp's -J output we read.
type ytdlpInfo struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	WebpageURL string  `json:"webpage_url"`
}

// Resolve eagerly fetches metadata for a URL or free-text search and returns
// a downloadable source. Searches resolve to their first hit.
func (f *Fetcher) Resolve(ctx context.Context, query string, isURL bool) (Source, error) {
	target := query
	if !isURL {
		target = "ytsearch1:" + query
	}

	out, err := f.run(ctx, f.bin, "-J", "--no-playlist", target)
	if err != nil {
		return nil, fmt.Errorf("source: resolve %q: %w", query, err)
	}

	// Search results come back as a one-entry playlist wrapper.
	var wrapper struct {
		ytdlpInfo
		Entries []ytdlpInfo `json:"entries"`
	}
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return nil, fmt.Errorf("source: parse metadata for %q: %w", query, err)
	}
	info := wrapper.ytdlpInfo
	if len(wrapper.Entries) > 0 {
		info = wrapper.Entries[0]
	}
	if info.WebpageURL == "" {
		return nil, fmt.Errorf("source: no results for %q", query)
	}

	return &remoteQuery{fetcher: f, info: info}, nil
}

// remoteQuery is a resolved URL or search hit, downloadable through yt-dlp.
type remoteQuery struct {
	fetcher *Fetcher
	info    ytdlpInfo
}

func (r *remoteQuery) Title() string { return r.info.Title }

func (r *remoteQuery) Duration() Duration {
	if r.info.Duration <= 0 {
		return Unknown()
	}
	return Seconds(r.info.Duration)
}

func (r *remoteQuery) Author() (string, string) {
	if r.info.Uploader != "" {
		return "Uploader", r.info.Uploader
	}
	return "Channel", r.info.Channel
}

func (r *remoteQuery) URL() string { return r.info.WebpageURL }

func (r *remoteQuery) Download(ctx context.Context, res *resource.Resource) (string, error) {
	_, err := r.fetcher.run(ctx, r.fetcher.bin,
		"-f", "bestaudio",
		"-x",
		"--no-playlist",
		"-o", filepath.Join(res.Path(), "%(id)s.%(ext)s"),
		r.info.WebpageURL,
	)
	if err != nil {
		return "", fmt.Errorf("source: download %q: %w", r.info.WebpageURL, err)
	}
	return soleFile(res.Path())
}

// soleFile returns the single regular file in dir. yt-dlp's output template
// does not tell us the post-extraction container, so we find it.
func soleFile(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if found != "" {
			return fmt.Errorf("source: multiple files in %s", dir)
		}
		found = path
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("source: no file produced in %s", dir)
	}
	if _, err := os.Stat(found); err != nil {
		return "", fmt.Errorf("source: stat %s: %w", found, err)
	}
	return found, nil
}
