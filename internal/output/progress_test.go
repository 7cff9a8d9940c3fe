package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar_NonTTYPrintsOnlyCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(3, "Upgrading packages")
	p.SetWriter(buf)

	p.Increment()
	p.Increment()
	if buf.Len() != 0 {
		t.Errorf("non-TTY bar should stay silent until complete, got %q", buf.String())
	}

	p.Increment()
	out := buf.String()
	if !strings.Contains(out, "100%") || !strings.Contains(out, "Upgrading packages") {
		t.Errorf("completion line = %q", out)
	}

	// Finish after completion must not print a second line.
	p.Finish()
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("expected one line, got %q", buf.String())
	}
}

func TestProgressBar_FinishEarly(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(10, "Upgrading packages")
	p.SetWriter(buf)

	p.Increment()
	p.Finish()

	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("Finish() should render a full bar, got %q", buf.String())
	}
}

func TestProgressBar_DoesNotOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(1, "x")
	p.SetWriter(buf)

	p.Increment()
	p.Increment()
	if p.current != 1 {
		t.Errorf("current = %d, want 1", p.current)
	}
}

func TestProgressBar_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(0, "Nothing to do")
	p.SetWriter(buf)

	p.Finish()
	if !strings.Contains(buf.String(), "0%") {
		t.Errorf("zero-total bar = %q", buf.String())
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(100, "Concurrent")
	p.SetWriter(buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				p.Increment()
			}
		}()
	}
	wg.Wait()

	if p.current != 100 {
		t.Errorf("current = %d, want 100", p.current)
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Resolving ripgrep")
	s.SetWriter(buf)

	s.Start()
	s.Start()
	s.Stop()

	if got := buf.String(); got != "Resolving ripgrep...\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSpinner_MultipleStops(t *testing.T) {
	s := NewSpinner("Test")
	s.SetWriter(&bytes.Buffer{})
	s.Start()

	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	s := NewSpinner("Test")
	s.SetWriter(&bytes.Buffer{})
	s.Stop()
}

func TestSpinner_StopWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Resolving")
	s.SetWriter(buf)
	s.Start()

	s.StopWithMessage("Resolved ripgrep 14.1.0")
	if !strings.Contains(buf.String(), "Resolved ripgrep 14.1.0\n") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSpinner_UpdateMessage(t *testing.T) {
	s := NewSpinner("Initial")
	s.UpdateMessage("Updated")
	if s.message != "Updated" {
		t.Errorf("message = %q", s.message)
	}
}
