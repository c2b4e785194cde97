package capture_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sorilabs/sori/pkg/capture"
)

func TestPushStream_DeliversFramesInOrder(t *testing.T) {
	p := capture.NewPushStream()
	h, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := [][]float32{{0.1}, {0.2}, {0.3}}
	for _, f := range want {
		if err := p.Push(f); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	p.CloseInput()

	var got [][]float32
	for f := range h.Frames() {
		got = append(got, f)
	}
	if len(got) != len(want) {
		t.Fatalf("frame count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i][0] != want[i][0] {
			t.Errorf("frame %d: got %f, want %f", i, got[i][0], want[i][0])
		}
	}
	if h.Err() != nil {
		t.Errorf("clean close should yield nil error, got %v", h.Err())
	}
}

func TestPushStream_DenyBeforeOpen(t *testing.T) {
	p := capture.NewPushStream()
	p.Deny()
	_, err := p.Open(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPushStream_FailMidStream(t *testing.T) {
	p := capture.NewPushStream()
	h, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cause := errors.New("socket dropped")
	p.Fail(cause)

	for range h.Frames() {
	}
	if !errors.Is(h.Err(), cause) {
		t.Errorf("expected terminal error %v, got %v", cause, h.Err())
	}
	if err := p.Push([]float32{0.5}); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("push after fail: expected ErrClosed, got %v", err)
	}
}

func TestPushStream_CloseIsIdempotent(t *testing.T) {
	p := capture.NewPushStream()
	h, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPushStream_SecondOpenRejected(t *testing.T) {
	p := capture.NewPushStream()
	if _, err := p.Open(context.Background()); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := p.Open(context.Background()); !errors.Is(err, capture.ErrPipeline) {
		t.Fatalf("second Open: expected ErrPipeline, got %v", err)
	}
}
