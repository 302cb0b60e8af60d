package ipc

import (
	"context"
	"io"
	"testing"
	"time"
)

// pipePair wires a worker endpoint to a supervisor endpoint through two
// in-memory pipes, mirroring the inherited-fd layout of the real processes.
func pipePair() (*WorkerEndpoint, *SupervisorEndpoint, func()) {
	downR, downW := io.Pipe()
	upR, upW := io.Pipe()
	closeAll := func() {
		downW.Close()
		upW.Close()
	}
	return NewWorkerEndpoint(downR, upW), NewSupervisorEndpoint(upR, downW), closeAll
}

func TestUpwardRoundTrip(t *testing.T) {
	worker, supervisor, closeAll := pipePair()

	sent := []Upward{
		CleanShutdown{},
		ExceptionShutdown{Err: "queue: player init failed"},
		FloodControlIssues{DelaySeconds: 12.5},
		ThreadingFailedShutdown{},
	}

	var received []Upward
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Listen(context.Background(), func(msg Upward) {
			received = append(received, msg)
		})
	}()

	for _, msg := range sent {
		if err := worker.Send(msg); err != nil {
			t.Fatalf("Send(%T): %v", msg, err)
		}
	}
	closeAll()
	if err := <-done; err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if len(received) != len(sent) {
		t.Fatalf("received %d messages, want %d", len(received), len(sent))
	}
	for i, msg := range sent {
		if received[i] != msg {
			t.Errorf("message %d = %#v, want %#v", i, received[i], msg)
		}
	}
}

func TestDownwardRoundTrip(t *testing.T) {
	worker, supervisor, closeAll := pipePair()

	var received []Downward
	done := make(chan error, 1)
	go func() {
		done <- worker.Listen(context.Background(), func(msg Downward) {
			received = append(received, msg)
		})
	}()

	if err := supervisor.Send(ShutDown{Force: 0}); err != nil {
		t.Fatal(err)
	}
	if err := supervisor.Send(ShutDown{Force: 1}); err != nil {
		t.Fatal(err)
	}
	closeAll()
	if err := <-done; err != nil {
		t.Fatalf("Listen: %v", err)
	}

	want := []Downward{ShutDown{Force: 0}, ShutDown{Force: 1}}
	if len(received) != len(want) {
		t.Fatalf("received %d messages, want %d", len(received), len(want))
	}
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("message %d = %#v, want %#v", i, received[i], want[i])
		}
	}
}

func TestListenStopsOnContextCancel(t *testing.T) {
	_, supervisor, closeAll := pipePair()
	defer closeAll()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Listen(ctx, func(Upward) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Listen = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestFloodControlDelayPrecision(t *testing.T) {
	msg := FloodControlIssues{DelaySeconds: 0.25}
	tag, payload, err := encodeUpward(msg)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeUpward(tag, payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != msg {
		t.Errorf("decoded = %#v, want %#v", decoded, msg)
	}
}
