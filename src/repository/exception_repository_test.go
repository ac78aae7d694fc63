package repository_test

import (
	"context"
	"testing"

	"aitrader/src/model"
	"aitrader/src/repository"
)

func TestExceptionRepository_Create(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewExceptionRepository().WithDB(db)

	exc := &model.Exception{Service: "aitrader", Module: "reconciler", Method: "handleOrderEvent", Message: "boom", Level: "error"}
	if err := repo.Create(ctx, exc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var count int64
	db.Model(&model.Exception{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 persisted exception, got %d", count)
	}
}
