package repository_test

import (
	"context"
	"testing"

	"aitrader/src/repository"
)

func TestStrategyMessage_InsertAndFindLatest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewStrategyMessageRepository().WithDB(db)

	for _, summary := range []string{"first", "second", "third"} {
		if err := repo.Insert(ctx, summary); err != nil {
			t.Fatalf("Insert(%q) failed: %v", summary, err)
		}
	}

	rows, err := repo.FindLatest(ctx, 2)
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(rows))
	}
}
