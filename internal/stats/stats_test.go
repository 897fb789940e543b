package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/umbusk1/bibliofep/pkg/postgres"
	"github.com/umbusk1/bibliofep/pkg/postgres/pgtest"
)

func seed(t *testing.T, db *postgres.Client) {
	t.Helper()
	ctx := context.Background()
	convs := []struct {
		id      string
		country string
		at      time.Time
		msgs    int
	}{
		{"a", "VE", time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC), 4},
		{"b", "VE", time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), 2},
		{"c", "CO", time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC), 6},
		{"d", "ES", time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), 1},
	}
	for _, c := range convs {
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO conversations (id, country, created_at, message_count, month, year)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.id, c.country, c.at, c.msgs, int(c.at.Month()), c.at.Year()); err != nil {
			t.Fatal(err)
		}
	}
	for _, tp := range [][2]string{{"a", "Independencia"}, {"b", "Independencia"}, {"c", "Bolívar"}, {"d", "Bolívar"}} {
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO topics (conversation_id, topic_name) VALUES ($1, $2)`, tp[0], tp[1]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStoreComputeMonth(t *testing.T) {
	db := pgtest.Open(t)
	seed(t, db)

	st, err := NewStore(db).Compute(context.Background(), Filter{Month: 1, Year: 2025})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if diff := cmp.Diff([]DayCount{{"2025-01-05", 2}, {"2025-01-07", 1}}, st.ConversationsByDay); diff != "" {
		t.Errorf("conversationsByDay (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]CountryCount{{"VE", 2}, {"CO", 1}}, st.Countries); diff != "" {
		t.Errorf("countries (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]DayAverage{{"2025-01-05", 3}, {"2025-01-07", 6}}, st.AvgMessagesByDay); diff != "" {
		t.Errorf("avgMessagesByDay (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]TopicCount{{"Independencia", 2}, {"Bolívar", 1}}, st.Topics); diff != "" {
		t.Errorf("topics (-want +got):\n%s", diff)
	}
	if st.General.TotalConversations != 3 || st.General.TotalMessages != 12 || st.General.AvgMessagesPerConversation != 4 {
		t.Errorf("general = %+v", st.General)
	}
	if st.General.FirstConversation == nil || !st.General.FirstConversation.Equal(time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("first conversation = %v", st.General.FirstConversation)
	}
}

func TestStoreComputeEmpty(t *testing.T) {
	db := pgtest.Open(t)

	st, err := NewStore(db).Compute(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if st.General.TotalConversations != 0 || st.General.FirstConversation != nil {
		t.Errorf("general = %+v", st.General)
	}
	if st.Topics == nil || st.Countries == nil {
		t.Error("empty slices should encode as [] not null")
	}
}
