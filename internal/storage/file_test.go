package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_AppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "players.jsonl")
	st, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	testStoreContract(t, st)

	info, err := os.Stat(p)
	if err != nil || info.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "nested", "players.jsonl")
	st, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	if err := st.Append(ctx, "Ivan", sampleRecord(time.Unix(100, 0).UTC(), 7)); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, err := reopened.ReadAll(ctx, "Ivan")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 1 || recs[0].Seat != 7 {
		t.Fatalf("unexpected records after reopen: %+v", recs)
	}
}

func TestFileStore_SkipsTornLine(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "players.jsonl")
	st, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	if err := st.Append(ctx, "Ivan", sampleRecord(time.Unix(100, 0).UTC(), 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"nickname":"Ivan","rec`)
	_ = f.Close()

	recs, err := st.ReadAll(ctx, "Ivan")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("torn line should be ignored, got %d records", len(recs))
	}
}

func TestFileStore_AppendAfterTornLine(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "players.jsonl")
	st, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	if err := st.Append(ctx, "Ivan", sampleRecord(time.Unix(100, 0).UTC(), 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"nickname":"Ivan","rec`)
	_ = f.Close()

	second := sampleRecord(time.Unix(200, 0).UTC(), 8)
	if err := st.Append(ctx, "Ivan", second); err != nil {
		t.Fatalf("append after torn line: %v", err)
	}
	recs, err := st.ReadAll(ctx, "Ivan")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("acknowledged append lost: want 2 records, got %d", len(recs))
	}
	if recs[1].ID != second.ID || recs[1].Seat != 8 {
		t.Fatalf("unexpected last record %+v", recs[1])
	}
}
