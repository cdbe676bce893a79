package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestKosmikHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		serverID string
		level    slog.Level
		message  string
		attrs    []slog.Attr
		want     string
	}{
		{
			name:     "basic info message",
			serverID: "srv-123",
			level:    slog.LevelInfo,
			message:  "version ingested",
			want:     "2024-06-15T14:30:45Z\tINFO\tsrv-123\tversion ingested\n",
		},
		{
			name:     "debug level",
			serverID: "srv-456",
			level:    slog.LevelDebug,
			message:  "token issued",
			want:     "2024-06-15T14:30:45Z\tDEBUG\tsrv-456\ttoken issued\n",
		},
		{
			name:     "with record attrs",
			serverID: "srv-789",
			level:    slog.LevelInfo,
			message:  "channel set",
			attrs:    []slog.Attr{slog.String("channel", "stable"), slog.Int("files", 42)},
			want:     "2024-06-15T14:30:45Z\tINFO\tsrv-789\tchannel set\tchannel=stable\tfiles=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &kosmikHandler{w: &buf, serverID: tt.serverID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestKosmikHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &kosmikHandler{w: &buf, serverID: "srv-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "store")}).(*kosmikHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "blob stored", 0)
	r.AddAttrs(slog.String("md5", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=store") {
		t.Errorf("expected pre-set attr component=store, got: %q", got)
	}
	if !strings.Contains(got, "md5=abc") {
		t.Errorf("expected record attr md5=abc, got: %q", got)
	}
}

func TestKosmikHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &kosmikHandler{w: &buf, serverID: "srv-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*kosmikHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-server")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
