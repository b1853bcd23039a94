package log

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLoggerWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	logger.Log(sampleEvent())
	logger.Log(sampleEvent())

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	dec := NewDecoder(f)
	var count int
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			break
		}
		if event.DestAddr != "BB:BB:BB:BB:BB:BB" {
			t.Errorf("event %d: DestAddr = %q", count, event.DestAddr)
		}
		count++
	}

	if count != 2 {
		t.Errorf("read %d events, want 2", count)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Logging after close must not panic.
	logger.Log(sampleEvent())
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.hlog")

	first, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	first.Log(sampleEvent())
	first.Close()

	second, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger reopen: %v", err)
	}
	second.Log(sampleEvent())
	second.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	dec := NewDecoder(f)
	var count int
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("read %d events after append, want 2", count)
	}
}
