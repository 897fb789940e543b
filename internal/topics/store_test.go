package topics

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/umbusk1/bibliofep/pkg/postgres/pgtest"
)

func TestStoreUserMessagesAndSave(t *testing.T) {
	db := pgtest.Open(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []string{"c1", "c2", "c3"} {
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at, month, year) VALUES ($1, $2, $3, 1, 2025)`,
			c, "título "+c, base); err != nil {
			t.Fatal(err)
		}
	}
	msgs := []struct {
		id, conv, role, content string
		offset                  time.Duration
	}{
		{"m1", "c2", "user", "primero", 0},
		{"m2", "c1", "user", "segundo", time.Minute},
		{"m3", "c1", "assistant", "respuesta", 2 * time.Minute},
		{"m4", "c2", "user", "tercero", 3 * time.Minute},
		{"m5", "c3", "assistant", "solo asistente", 4 * time.Minute},
	}
	for _, m := range msgs {
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			m.id, m.conv, m.role, m.content, base.Add(m.offset)); err != nil {
			t.Fatal(err)
		}
	}

	store := NewStore(db)
	got, err := store.UserMessages(ctx, []string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("UserMessages: %v", err)
	}
	want := []Conversation{
		{ID: "c2", Title: "título c2", Messages: []string{"primero", "tercero"}},
		{ID: "c1", Title: "título c1", Messages: []string{"segundo"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conversations (-want +got):\n%s", diff)
	}

	assignments := []Assignment{
		{ConversationID: "c1", Name: "Bolívar", Category: "personajes", Relevance: 0.9},
		{ConversationID: "c2", Name: "Bolívar", Relevance: 0.5},
	}
	n, err := store.Save(ctx, assignments)
	if err != nil || n != 2 {
		t.Fatalf("Save: n=%d err=%v", n, err)
	}
	n, err = store.Save(ctx, assignments)
	if err != nil || n != 0 {
		t.Errorf("re-saving should insert nothing: n=%d err=%v", n, err)
	}
}
