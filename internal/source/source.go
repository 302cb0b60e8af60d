// Package source models where queued audio comes from: a remote query
// resolved through yt-dlp, a chat-uploaded blob, or a file already on disk.
// All variants expose the same capability set; the queue engine never cares
// which one it holds.
package source

import (
	"context"

	"github.com/dabneyhovse/further/internal/resource"
)

// Source is one queued piece of audio. Metadata accessors are cheap after
// construction; Download is blocking I/O invoked from the queue's download
// task.
type Source interface {
	// Download materialises the audio inside res and returns the path of
	// the playable file.
	Download(ctx context.Context, res *resource.Resource) (string, error)

	// Title is the display title.
	Title() string

	// Duration is the natural-rate track length.
	Duration() Duration

	// Author returns a role label ("Uploader", "Artist", "Sender") and the
	// matching name; either may be empty.
	Author() (role, name string)

	// URL is the canonical link, or "" when none exists.
	URL() string
}
