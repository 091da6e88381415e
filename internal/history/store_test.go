package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/phraselabs/phrased/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Append(context.Background(), Record{ID: "a", ModelID: "m"}); err != nil {
		t.Fatalf("append should be a no-op: %v", err)
	}
	records, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records in ephemeral mode, got %d", len(records))
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec := Record{
		ID:         "job-1",
		ModelID:    "en_US-rhasspy",
		Text:       "turn on the lights",
		AudioBytes: 32000,
		DurationMS: 850,
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(context.Background(), Record{ID: "job-2", ModelID: "en_US-coqui", Text: "what time is it"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := s.List(context.Background(), "en_US-rhasspy", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "turn on the lights" {
		t.Fatalf("unexpected text: %s", records[0].Text)
	}

	all, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
}

func TestPruneByAgeAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{
		Path:          filepath.Join(tmp, "history.db"),
		RetentionMode: "persistent",
		RetentionDays: 7,
		MaxRecords:    2,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	now := time.Now().UTC()
	old := Record{ID: "old", ModelID: "m", Text: "stale", CreatedAt: now.AddDate(0, 0, -30)}
	if err := s.Append(context.Background(), old); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i, id := range []string{"a", "b", "c"} {
		rec := Record{ID: id, ModelID: "m", Text: id, CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after prune, got %d", len(records))
	}
	for _, r := range records {
		if r.ID == "old" {
			t.Fatal("expected aged-out record to be pruned")
		}
	}
}
