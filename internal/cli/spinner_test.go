package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// captureStatus redirects status output for the duration of a test.
func captureStatus(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := statusOut
	statusOut = &buf
	t.Cleanup(func() { statusOut = old })
	return &buf
}

func TestSpinnerSilentWithoutTerminal(t *testing.T) {
	buf := captureStatus(t)
	s := newSpinner(context.Background(), "Emitting home...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.StopWithSuccess("home: 3 assets")

	out := buf.String()
	if strings.Contains(out, "Emitting") {
		t.Errorf("spinner animated on a non-terminal: %q", out)
	}
	if !strings.Contains(out, "home: 3 assets") {
		t.Errorf("missing success line: %q", out)
	}
}

func TestSpinnerAnimates(t *testing.T) {
	buf := captureStatus(t)
	s := newSpinner(context.Background(), "Emitting home...")
	s.animate = true
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.SetMessage("Emitting about...")
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	out := buf.String()
	for _, want := range []string{"Emitting home...", "Emitting about..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestSpinnerCancelled(t *testing.T) {
	captureStatus(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, "Rendering...")
	s.animate = true
	s.Start()
	cancel()
	time.Sleep(50 * time.Millisecond)

	if !s.Cancelled() {
		t.Error("spinner should report cancellation after its context ends")
	}
	s.Stop()
	if s.Cancelled() {
		t.Error("a stopped spinner is not cancelled")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	buf := captureStatus(t)
	s := newSpinner(context.Background(), "Testing...")
	s.Start()
	s.Stop()
	s.Stop()
	s.StopWithError("failed")
	if !strings.Contains(buf.String(), "failed") {
		t.Errorf("missing error line: %q", buf.String())
	}
}
