package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dabneyhovse/further/internal/resource"
)

// BlobDownloader fetches a chat-attached file into destPath. The chat layer
// supplies one so this package stays transport-agnostic.
type BlobDownloader func(ctx context.Context, fileID, destPath string) error

// UploadedBlob is an audio file attached to a chat message.
type UploadedBlob struct {
	FileID string
	Name   string
	Sender string
	Length Duration
	Fetch  BlobDownloader
}

// NewUploadedBlob describes a chat attachment. durationSeconds <= 0 means
// the platform did not report a length.
func NewUploadedBlob(fileID, name, sender string, durationSeconds float64, dl BlobDownloader) *UploadedBlob {
	length := Unknown()
	if durationSeconds > 0 {
		length = Seconds(durationSeconds)
	}
	if name == "" {
		name = "uploaded audio"
	}
	return &UploadedBlob{FileID: fileID, Name: name, Sender: sender, Length: length, Fetch: dl}
}

func (u *UploadedBlob) Title() string      { return u.Name }
func (u *UploadedBlob) Duration() Duration { return u.Length }
func (u *UploadedBlob) URL() string        { return "" }

func (u *UploadedBlob) Author() (string, string) {
	return "Sender", u.Sender
}

func (u *UploadedBlob) Download(ctx context.Context, res *resource.Resource) (string, error) {
	dest := filepath.Join(res.Path(), filepath.Base(u.Name))
	if err := u.Fetch(ctx, u.FileID, dest); err != nil {
		return "", fmt.Errorf("source: fetch upload %q: %w", u.Name, err)
	}
	return dest, nil
}
