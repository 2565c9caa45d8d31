package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/storage"
)

// TestDB is a migrated in-memory journal database.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions seeds a test database.
type TestDBOptions struct {
	CustomSetup func(context.Context, *storage.SQLiteStorage) error
	Batches     map[string]model.BatchResult
	Journal     []model.JournalEntry
}

// SetupTestDB creates a migrated in-memory database and closes it when the
// test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	executor := upload.NewExecutor(uploader, upload.WithJournal(db.Storage, "batch-1"))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database and seeds finished batches
// and journal entries.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for id, result := range opts.Batches {
		if err := store.StartBatch(ctx, id, result.Total()); err != nil {
			t.Fatalf("failed to seed batch %q: %v", id, err)
		}
		if err := store.FinishBatch(ctx, id, result); err != nil {
			t.Fatalf("failed to finish batch %q: %v", id, err)
		}
	}

	for _, entry := range opts.Journal {
		if err := store.RecordUpload(ctx, entry); err != nil {
			t.Fatalf("failed to seed journal entry for %q: %v", entry.Filename, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// MustJournal returns the journal entries of a batch, oldest first, or
// fails the test.
func (db *TestDB) MustJournal(batchID string) []model.JournalEntry {
	db.t.Helper()

	entries, err := db.Storage.ListJournal(context.Background(), storage.JournalFilter{BatchID: batchID})
	if err != nil {
		db.t.Fatalf("failed to list journal: %v", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
