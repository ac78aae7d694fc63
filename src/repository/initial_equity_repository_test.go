package repository_test

import (
	"context"
	"testing"

	"aitrader/src/repository"
)

func TestInitialEquity_SeedThenSet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewInitialEquityRepository().WithDB(db)

	if err := repo.Seed(ctx, 10000); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := repo.Seed(ctx, 99999); err != nil {
		t.Fatalf("second Seed call failed: %v", err)
	}

	row, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row == nil || row.Value != 10000 {
		t.Fatalf("expected Seed to be a no-op once a row exists, got %+v", row)
	}

	if err := repo.Set(ctx, 20000); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	row, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}
	if row == nil || row.Value != 20000 {
		t.Fatalf("expected Set to overwrite the value, got %+v", row)
	}
}

func TestInitialEquity_GetReturnsNilWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewInitialEquityRepository().WithDB(db)

	row, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil row before seeding")
	}
}
