package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

const (
	tokenA = "0x00000000000000000000000000000000000000aa"
	alice  = "0x0000000000000000000000000000000000000a11"
	bob    = "0x0000000000000000000000000000000000000b0b"
)

type fakeVolume struct {
	since  time.Time
	points []storage.VolumePoint
	err    error
}

func (f *fakeVolume) DailyVolume(ctx context.Context, token string, since time.Time) ([]storage.VolumePoint, error) {
	f.since = since
	return f.points, f.err
}

func seedStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	token := models.NewToken(tokenA)
	token.Name = "Alpha"
	token.Symbol = "ALP"
	token.Decimals = 18
	token.TotalSupply = big.NewInt(100)
	token.CurrentHolderCount = 2
	require.NoError(t, tx.SaveToken(ctx, token))

	for account, amount := range map[string]int64{alice: 70, bob: 30, types.SentinelAddress: 0} {
		b := models.NewAccountBalance(account, tokenA)
		b.Amount = big.NewInt(amount)
		require.NoError(t, tx.SaveBalance(ctx, b))
	}
	require.NoError(t, tx.SaveTransferEvent(ctx, &models.TransferEvent{
		Token: tokenA, TxHash: "0x01", From: alice, To: bob, Amount: big.NewInt(30), BlockNumber: 5,
	}))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, store.SavePurchase(ctx, &models.PurchaseHistory{
		TxHash: "0x02", Token: tokenA, Account: bob, Amount: big.NewInt(1), EthAmount: big.NewInt(2), Side: types.SideBuy,
	}))
	require.NoError(t, store.SaveFundraisingEvent(ctx, &models.FundraisingEvent{
		TxHash: "0x03", Kind: types.FundraisingTokensClaimed, Participant: alice, Amount: big.NewInt(5),
	}))
	return store
}

func newTestServer(t *testing.T, deps ServerDeps) *Server {
	t.Helper()
	if deps.Ledger == nil {
		deps.Ledger = seedStore(t)
	}
	deps.Logger = logging.NewNop()
	return NewServer(&ServerConfig{Host: "localhost", Port: "0", RateLimitRPS: 1000, RateLimitBurst: 1000}, deps)
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, ServerDeps{Checks: map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
	}})
	w, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	s = newTestServer(t, ServerDeps{Checks: map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("down") },
	}})
	w, body = get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestGetToken(t *testing.T) {
	s := newTestServer(t, ServerDeps{})

	w, body := get(t, s, "/api/tokens/0x00000000000000000000000000000000000000AA")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tokenA, body["address"])
	assert.Equal(t, "ALP", body["symbol"])
	assert.Equal(t, float64(100), body["totalSupply"])

	w, body = get(t, s, "/api/tokens/0x1234")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ADDRESS", errorCode(body))

	w, body = get(t, s, "/api/tokens/0x00000000000000000000000000000000000000cc")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestListEndpoints(t *testing.T) {
	s := newTestServer(t, ServerDeps{})

	tests := []struct {
		path  string
		field string
		count int
	}{
		{"/api/tokens", "tokens", 1},
		{"/api/tokens/" + tokenA + "/transfers", "transfers", 1},
		{"/api/tokens/" + tokenA + "/holders", "holders", 2},
		{"/api/tokens/" + tokenA + "/purchases", "purchases", 1},
		{"/api/accounts/" + alice + "/balances", "balances", 1},
		{"/api/accounts/0x00000000000000000000000000000000000000ff/balances", "balances", 0},
		{"/api/fundraising", "events", 1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, body := get(t, s, tt.path)
			require.Equal(t, http.StatusOK, w.Code)
			items, ok := body[tt.field].([]interface{})
			require.True(t, ok, "missing %s", tt.field)
			assert.Len(t, items, tt.count)
		})
	}
}

func TestListHolders_LargestFirst(t *testing.T) {
	s := newTestServer(t, ServerDeps{})

	w, body := get(t, s, "/api/tokens/"+tokenA+"/holders?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	holders := body["holders"].([]interface{})
	require.Len(t, holders, 1)
	assert.Equal(t, alice, holders[0].(map[string]interface{})["account"])
	assert.Equal(t, float64(1), body["limit"])
}

func TestPaginationDefaults(t *testing.T) {
	s := newTestServer(t, ServerDeps{})

	for _, query := range []string{"?limit=-10", "?offset=-5", "?limit=10000", "?limit=abc"} {
		w, body := get(t, s, "/api/tokens"+query)
		require.Equal(t, http.StatusOK, w.Code, query)
		assert.LessOrEqual(t, body["limit"].(float64), float64(500))
		assert.GreaterOrEqual(t, body["offset"].(float64), float64(0))
	}
}

func TestGetVolume(t *testing.T) {
	w, body := get(t, newTestServer(t, ServerDeps{}), "/api/tokens/"+tokenA+"/volume")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, ErrCodeServiceUnavailable, errorCode(body))

	volume := &fakeVolume{points: []storage.VolumePoint{{Transfers: 3, Volume: big.NewInt(90)}}}
	s := newTestServer(t, ServerDeps{Volume: volume})

	w, body = get(t, s, "/api/tokens/"+tokenA+"/volume?days=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["volume"], 1)
	assert.Equal(t, time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -2), volume.since)

	w, _ = get(t, s, "/api/tokens/"+tokenA+"/volume?days=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	volume.err = errors.New("clickhouse down")
	w, body = get(t, s, "/api/tokens/"+tokenA+"/volume")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, errorCode(body))
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, ServerDeps{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	s := NewServer(&ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 2}, ServerDeps{
		Ledger: storage.NewMemoryStore(),
		Logger: logging.NewNop(),
	})

	codes := make([]int, 0, 3)
	var (
		last *httptest.ResponseRecorder
		body map[string]interface{}
	)
	for i := 0; i < 3; i++ {
		last, body = get(t, s, "/api/tokens")
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(body))
	assert.Equal(t, "1000", last.Header().Get("Retry-After"))
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, ServerDeps{})
	w, _ := get(t, s, "/api/tokens")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
}
