package ipc

import (
	"context"
	"errors"
	"io"
	"sync"
)

// WorkerEndpoint is the worker-side half of the pipe pair: it sends upward
// events and listens for downward commands.
type WorkerEndpoint struct {
	mu sync.Mutex
	w  io.Writer
	r  io.Reader
}

// NewWorkerEndpoint wraps the worker's inherited pipe ends.
func NewWorkerEndpoint(down io.Reader, up io.Writer) *WorkerEndpoint {
	return &WorkerEndpoint{w: up, r: down}
}

// Send emits one upward event. Safe for concurrent use.
func (e *WorkerEndpoint) Send(msg Upward) error {
	tag, payload, err := encodeUpward(msg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeFrame(e.w, tag, payload)
}

// Listen reads downward commands until the pipe closes or ctx is cancelled,
// invoking handler for each in arrival order. A clean pipe close returns nil.
func (e *WorkerEndpoint) Listen(ctx context.Context, handler func(Downward)) error {
	return listen(ctx, e.r, func(tag byte, payload []byte) error {
		msg, err := decodeDownward(tag, payload)
		if err != nil {
			return err
		}
		handler(msg)
		return nil
	})
}

// SupervisorEndpoint is the supervisor-side half: it sends downward commands
// and listens for upward events.
type SupervisorEndpoint struct {
	mu sync.Mutex
	w  io.Writer
	r  io.Reader
}

// NewSupervisorEndpoint wraps the supervisor's pipe ends.
func NewSupervisorEndpoint(up io.Reader, down io.Writer) *SupervisorEndpoint {
	return &SupervisorEndpoint{w: down, r: up}
}

// Send emits one downward command. Safe for concurrent use.
func (e *SupervisorEndpoint) Send(msg Downward) error {
	tag, payload, err := encodeDownward(msg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeFrame(e.w, tag, payload)
}

// Listen reads upward events until the pipe closes or ctx is cancelled,
// invoking handler for each in arrival order. A clean pipe close returns nil.
func (e *SupervisorEndpoint) Listen(ctx context.Context, handler func(Upward)) error {
	return listen(ctx, e.r, func(tag byte, payload []byte) error {
		msg, err := decodeUpward(tag, payload)
		if err != nil {
			return err
		}
		handler(msg)
		return nil
	})
}

// listen pumps frames from r into dispatch. Reads block in a goroutine so a
// ctx cancellation returns promptly even with a frame in flight; the
// abandoned read exits once the peer closes its end.
func listen(ctx context.Context, r io.Reader, dispatch func(byte, []byte) error) error {
	type frame struct {
		tag     byte
		payload []byte
		err     error
	}
	frames := make(chan frame)
	go func() {
		defer close(frames)
		for {
			tag, payload, err := readFrame(r)
			select {
			case frames <- frame{tag, payload, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					return nil
				}
				return f.err
			}
			if err := dispatch(f.tag, f.payload); err != nil {
				return err
			}
		}
	}
}
