package storage

import (
	"context"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "uploads/1-a.pdf", []byte("content"), "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := store.Get(ctx, "uploads/1-a.pdf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "content" {
		t.Fatalf("Get() = %q", data)
	}
	if err := store.Delete(ctx, "uploads/1-a.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "uploads/1-a.pdf"); err == nil {
		t.Fatal("Get() after delete should fail")
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	if err := store.Put(context.Background(), "../escape", []byte("x"), ""); err == nil {
		t.Fatal("Put() should reject path traversal keys")
	}
}
