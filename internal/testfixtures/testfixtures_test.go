package testfixtures

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestClockAdvancesOnEveryReading(t *testing.T) {
	clock := NewClock(time.Time{}, time.Second)

	first := clock.Now()
	if !first.Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", first)
	}
	if got := clock.Now().Sub(first); got != time.Second {
		t.Fatalf("expected one second between readings, got %v", got)
	}

	clock.Advance(time.Hour)
	if got := clock.Peek(); !got.Equal(first.Add(2*time.Second + time.Hour)) {
		t.Fatalf("unexpected peek %v", got)
	}
}

func TestSequenceIsConcurrencySafe(t *testing.T) {
	seq := NewSequence("")

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := seq.Next()
			if _, dup := seen.LoadOrStore(id, true); dup {
				t.Errorf("duplicate id %s", id)
			}
		}()
	}
	wg.Wait()

	if next := seq.Next(); next != "run-51" {
		t.Fatalf("expected run-51, got %s", next)
	}
}

func TestNewBookIsUnique(t *testing.T) {
	a := NewBook()
	b := NewBook(WithTags("fiction"), WithAuthor("Ada"))

	if a.BookID == b.BookID {
		t.Fatalf("expected unique ids, got %s twice", a.BookID)
	}
	if !b.DateInserted.After(a.DateInserted) {
		t.Fatalf("expected later insertion date")
	}
	if b.AuthorName == nil || *b.AuthorName != "Ada" || len(b.Tags) != 1 {
		t.Fatalf("options not applied: %+v", b)
	}
}

func TestSQLiteHarness(t *testing.T) {
	ctx := context.Background()
	h := NewSQLiteHarness(t)

	if h.Database.DatabaseRootPath() != h.Root {
		t.Fatalf("expected root %s, got %s", h.Root, h.Database.DatabaseRootPath())
	}

	if err := h.Books.InsertBook(ctx, NewBook(WithTags("harness"))); err != nil {
		t.Fatalf("InsertBook failed: %v", err)
	}
	count, err := h.Books.CountBooks(ctx)
	if err != nil {
		t.Fatalf("CountBooks failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 book, got %d", count)
	}
}

func TestSQLiteHarness_Deterministic(t *testing.T) {
	ctx := context.Background()
	clock := NewClock(time.Time{}, time.Millisecond)
	h := NewSQLiteHarness(t, WithClock(clock), WithRunIDs(NewSequence("startup")))

	status, err := h.Database.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.Applied) != 1 {
		t.Fatalf("expected one applied migration, got %d", len(status.Applied))
	}
	record := status.Applied[0]
	if record.RunID != "startup-1" {
		t.Fatalf("expected run id startup-1, got %q", record.RunID)
	}
	if record.AppliedAt.Before(ReferenceTime()) || record.AppliedAt.After(clock.Peek()) {
		t.Fatalf("applied_at %v outside clock range", record.AppliedAt)
	}

	book := NewBook(InsertedAt(time.Time{}))
	if err := h.Books.InsertBook(ctx, book); err != nil {
		t.Fatalf("InsertBook failed: %v", err)
	}
	stored, err := h.Books.GetBook(ctx, book.BookID)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if stored.DateInserted.Before(ReferenceTime()) {
		t.Fatalf("expected insertion date from the fixture clock, got %v", stored.DateInserted)
	}
}
