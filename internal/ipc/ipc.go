// Package ipc carries typed messages between the supervisor and worker
// processes over a pair of inherited pipes. The wire format is a single
// ASCII tag byte followed by a big-endian uint32 payload length and the
// payload itself; both ends of the pipe are always the same build, so the
// format does not need to be stable across versions.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message tags. Upward tags are worker → supervisor; the downward direction
// has only the shutdown command.
const (
	tagCleanShutdown     byte = 'C'
	tagExceptionShutdown byte = 'E'
	tagFloodControl      byte = 'F'
	tagThreadingFailed   byte = 'T'
	tagShutDown          byte = 'S'
)

// Upward is an event sent from the worker to the supervisor.
type Upward interface {
	upward()
}

// CleanShutdown reports that the worker's scheduler exited normally and all
// background tasks terminated.
type CleanShutdown struct{}

// ExceptionShutdown reports that the worker died on a top-level error.
type ExceptionShutdown struct {
	Err string
}

// FloodControlIssues reports that an outbound chat API call was throttled.
// DelaySeconds is how long the platform asked us to back off.
type FloodControlIssues struct {
	DelaySeconds float64
}

// ThreadingFailedShutdown reports that the scheduler exited but background
// tasks did not terminate within the grace window.
type ThreadingFailedShutdown struct{}

func (CleanShutdown) upward()           {}
func (ExceptionShutdown) upward()       {}
func (FloodControlIssues) upward()      {}
func (ThreadingFailedShutdown) upward() {}

// Downward is a command sent from the supervisor to the worker.
type Downward interface {
	downward()
}

// ShutDown tells the worker to stop. Force 0 requests a graceful in-band
// stop; force 1 aborts the worker event loop.
type ShutDown struct {
	Force int
}

func (ShutDown) downward() {}

// writeFrame emits one tagged frame.
func writeFrame(w io.Writer, tag byte, payload []byte) error {
	header := make([]byte, 5, 5+len(payload))
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(append(header, payload...)); err != nil {
		return fmt.Errorf("ipc: write frame %q: %w", tag, err)
	}
	return nil
}

// readFrame reads one tagged frame. It returns io.EOF unwrapped when the
// pipe closes cleanly between frames.
func readFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("ipc: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[1:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("ipc: read frame payload: %w", err)
	}
	return header[0], payload, nil
}

func encodeUpward(msg Upward) (byte, []byte, error) {
	switch m := msg.(type) {
	case CleanShutdown:
		return tagCleanShutdown, nil, nil
	case ExceptionShutdown:
		return tagExceptionShutdown, []byte(m.Err), nil
	case FloodControlIssues:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(m.DelaySeconds*1000))
		return tagFloodControl, buf[:], nil
	case ThreadingFailedShutdown:
		return tagThreadingFailed, nil, nil
	default:
		return 0, nil, fmt.Errorf("ipc: unknown upward message %T", msg)
	}
}

func decodeUpward(tag byte, payload []byte) (Upward, error) {
	switch tag {
	case tagCleanShutdown:
		return CleanShutdown{}, nil
	case tagExceptionShutdown:
		return ExceptionShutdown{Err: string(payload)}, nil
	case tagFloodControl:
		if len(payload) != 8 {
			return nil, fmt.Errorf("ipc: flood-control payload is %d bytes, want 8", len(payload))
		}
		millis := binary.BigEndian.Uint64(payload)
		return FloodControlIssues{DelaySeconds: float64(millis) / 1000}, nil
	case tagThreadingFailed:
		return ThreadingFailedShutdown{}, nil
	default:
		return nil, fmt.Errorf("ipc: unknown upward tag %q", tag)
	}
}

func encodeDownward(msg Downward) (byte, []byte, error) {
	switch m := msg.(type) {
	case ShutDown:
		return tagShutDown, []byte{byte(m.Force)}, nil
	default:
		return 0, nil, fmt.Errorf("ipc: unknown downward message %T", msg)
	}
}

func decodeDownward(tag byte, payload []byte) (Downward, error) {
	switch tag {
	case tagShutDown:
		if len(payload) != 1 {
			return nil, fmt.Errorf("ipc: shutdown payload is %d bytes, want 1", len(payload))
		}
		return ShutDown{Force: int(payload[0])}, nil
	default:
		return nil, fmt.Errorf("ipc: unknown downward tag %q", tag)
	}
}
