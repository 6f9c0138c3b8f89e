package database

import (
	"context"
	"testing"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db := openTestDB(t)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db)
}

func TestStore_IdentityRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	idents := []registry.Identity{
		{ID: 7, Class: protocol.ClassSensor, Name: "living-room-temp"},
		{ID: 9, Class: protocol.ClassActuator, Name: "hall-dimmer"},
	}
	for _, ident := range idents {
		if err := store.SaveIdentity(ctx, ident); err != nil {
			t.Fatalf("SaveIdentity(%d) error = %v", ident.ID, err)
		}
	}

	loaded, err := store.LoadIdentities(ctx)
	if err != nil {
		t.Fatalf("LoadIdentities() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d identities, want 2", len(loaded))
	}
	for i, want := range idents {
		if loaded[i] != want {
			t.Errorf("identity[%d] = %+v, want %+v", i, loaded[i], want)
		}
	}
}

func TestStore_SaveIdentityUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveIdentity(ctx, registry.Identity{
		ID: 7, Class: protocol.ClassSensor, Name: "temp",
	}); err != nil {
		t.Fatalf("SaveIdentity() error = %v", err)
	}

	// A re-announcement with a new name replaces the row.
	if err := store.SaveIdentity(ctx, registry.Identity{
		ID: 7, Class: protocol.ClassSensor, Name: "bedroom-temp",
	}); err != nil {
		t.Fatalf("SaveIdentity() update error = %v", err)
	}

	loaded, err := store.LoadIdentities(ctx)
	if err != nil {
		t.Fatalf("LoadIdentities() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d identities, want 1", len(loaded))
	}
	if loaded[0].Name != "bedroom-temp" {
		t.Errorf("name = %q, want %q", loaded[0].Name, "bedroom-temp")
	}
}

func TestStore_DeleteIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveIdentity(ctx, registry.Identity{
		ID: 7, Class: protocol.ClassSensor, Name: "temp",
	}); err != nil {
		t.Fatalf("SaveIdentity() error = %v", err)
	}

	if err := store.DeleteIdentity(ctx, 7); err != nil {
		t.Fatalf("DeleteIdentity() error = %v", err)
	}

	loaded, err := store.LoadIdentities(ctx)
	if err != nil {
		t.Fatalf("LoadIdentities() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d identities, want 0", len(loaded))
	}

	// Deleting an absent row is not an error.
	if err := store.DeleteIdentity(ctx, 999); err != nil {
		t.Errorf("DeleteIdentity(absent) error = %v", err)
	}
}

func TestStore_CursorRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A fresh database reports cursor zero.
	cursor, err := store.LoadCursor(ctx)
	if err != nil {
		t.Fatalf("LoadCursor() error = %v", err)
	}
	if cursor != 0 {
		t.Errorf("fresh cursor = %d, want 0", cursor)
	}

	if err := store.SaveCursor(ctx, 41); err != nil {
		t.Fatalf("SaveCursor(41) error = %v", err)
	}
	if err := store.SaveCursor(ctx, 97); err != nil {
		t.Fatalf("SaveCursor(97) error = %v", err)
	}

	cursor, err = store.LoadCursor(ctx)
	if err != nil {
		t.Fatalf("LoadCursor() error = %v", err)
	}
	if cursor != 97 {
		t.Errorf("cursor = %d, want 97", cursor)
	}
}
