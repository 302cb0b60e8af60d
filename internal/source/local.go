package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dabneyhovse/further/internal/resource"
)

// LocalFile is audio already on disk, used for canned sound effects. It
// claims no resource and its "download" is just an existence check.
type LocalFile struct {
	Path string
}

// NewLocalFile points at an on-disk audio file.
func NewLocalFile(path string) *LocalFile {
	return &LocalFile{Path: path}
}

func (l *LocalFile) Title() string {
	base := filepath.Base(l.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *LocalFile) Duration() Duration       { return Unknown() }
func (l *LocalFile) Author() (string, string) { return "", "" }
func (l *LocalFile) URL() string              { return "" }

func (l *LocalFile) Download(ctx context.Context, _ *resource.Resource) (string, error) {
	if _, err := os.Stat(l.Path); err != nil {
		return "", fmt.Errorf("source: local file: %w", err)
	}
	return l.Path, nil
}
