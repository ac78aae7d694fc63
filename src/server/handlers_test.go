package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"aitrader/src/model"
	"aitrader/src/registry"
	"aitrader/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.StrategyMessage{}, &model.Position{}))
	return db
}

type fakeWaker struct {
	woken []string
}

func (f *fakeWaker) Wake(instID string, source registry.Source, price *float64) {
	f.woken = append(f.woken, instID)
}

func TestHandleStrategyRun_DisabledReturnsForbidden(t *testing.T) {
	waker := &fakeWaker{}
	handler := handleStrategyRun(Deps{Waker: waker, ManualTriggerEnabled: false, InstIDs: []string{"BTC-USDT-SWAP"}})

	req := httptest.NewRequest(http.MethodPost, "/model/strategy-run", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, waker.woken)
}

func TestHandleStrategyRun_EnabledWakesEveryInstrument(t *testing.T) {
	waker := &fakeWaker{}
	handler := handleStrategyRun(Deps{Waker: waker, ManualTriggerEnabled: true, InstIDs: []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}})

	req := httptest.NewRequest(http.MethodPost, "/model/strategy-run", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.ElementsMatch(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, waker.woken)
}

func TestHandleStrategyChat_ReturnsLatestMessages(t *testing.T) {
	db := newTestDB(t)
	messages := repository.NewStrategyMessageRepository().WithDB(db)
	assert.NoError(t, messages.Insert(context.Background(), "first analysis"))
	assert.NoError(t, messages.Insert(context.Background(), "second analysis"))

	handler := handleStrategyChat(Deps{StrategyMessages: messages, ManualTriggerEnabled: true})

	req := httptest.NewRequest(http.MethodGet, "/model/strategy-chat?limit=5", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "second analysis")
	assert.Contains(t, rr.Body.String(), "manual_trigger_allowed")
}

func TestHandlePositions_FiltersBySymbol(t *testing.T) {
	db := newTestDB(t)
	positions := repository.NewPositionRepository().WithDB(db)
	avg := 100.0
	assert.NoError(t, positions.UpsertPosition(context.Background(), repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 1, AvgPrice: &avg,
	}))
	assert.NoError(t, positions.UpsertPosition(context.Background(), repository.PositionSnapshot{
		InstID: "ETH-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 2, AvgPrice: &avg,
	}))

	handler := handlePositions(Deps{Positions: positions}, false)

	req := httptest.NewRequest(http.MethodGet, "/account/positions?symbol=ETH-USDT-SWAP", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ETH-USDT-SWAP")
	assert.NotContains(t, rr.Body.String(), "BTC-USDT-SWAP")
}
