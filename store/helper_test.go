package store

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := InitDB(context.Background(), db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return NewStore(db)
}

func newTestResultCache(t *testing.T) *ResultCache {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := InitResultCacheDB(context.Background(), db); err != nil {
		t.Fatalf("InitResultCacheDB: %v", err)
	}
	return NewResultCache(db)
}
