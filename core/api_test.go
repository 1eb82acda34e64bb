package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/stretchr/testify/require"
	"mining-coordinator/config"
	"mining-coordinator/model"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type apiFixture struct {
	api       *Api
	handler   http.Handler
	lifecycle *Lifecycle
	store     *Memory
	registry  *Registry
}

func newApiFixture(t *testing.T, tweak func(cfg *config.Api)) *apiFixture {
	t.Helper()

	cfg := config.Default().Api
	if tweak != nil {
		tweak(cfg)
	}

	store := NewMemory()
	registry := NewRegistry()
	lifecycle := NewLifecycle(store, registry, NewSettler(100, 5*time.Minute), 1)
	api := NewApi(cfg, lifecycle, store, NewRelay(registry), nil)

	return &apiFixture{
		api:       api,
		handler:   api.Handler(),
		lifecycle: lifecycle,
		store:     store,
		registry:  registry,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) currentBlock(t *testing.T) model.Block {
	t.Helper()

	rec := f.do(t, http.MethodGet, "/api/blocks/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[model.Block](t, rec)
}

func (f *apiFixture) verify(t *testing.T, initData string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"initData": initData})
}

func TestApiCurrentBlock(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)
	block := f.currentBlock(t)
	require.NotZero(t, block.Id)
	require.Equal(t, model.BlockStatusMining, block.Status)
	require.Equal(t, 1, block.Difficulty)
	require.Len(t, block.Hash, 64)

	require.Equal(t, block.Id, f.currentBlock(t).Id)
}

func TestApiSubmitSolution(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)
	block := f.currentBlock(t)

	rec := f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": 999, "nonce": "1", "minerId": "alice"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, map[string]string{"error": "Invalid block", "reason": "unknown-block"}, decode[map[string]string](t, rec))

	bad := findNonce(t, block.Hash, 1, false)
	rec = f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": block.Id, "nonce": bad, "minerId": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, map[string]string{"error": "Invalid solution", "reason": "invalid-nonce"}, decode[map[string]string](t, rec))

	good := findNonce(t, block.Hash, 1, true)
	rec = f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": block.Id, "nonce": good, "minerId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decode[map[string]interface{}](t, rec)["success"])

	rec = f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": block.Id, "nonce": good, "minerId": "bob"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already-completed", decode[map[string]string](t, rec)["reason"])

	rec = f.do(t, http.MethodGet, "/api/blocks/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]model.Block](t, rec)
	require.Len(t, history, 1)
	require.Equal(t, "alice", *history[0].MinedBy)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/blocks/%d/rewards", block.Id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rewards := decode[[]model.Reward](t, rec)
	require.Len(t, rewards, 1)
	require.Equal(t, model.RewardKindSolver, rewards[0].Kind)

	require.NotEqual(t, block.Id, f.currentBlock(t).Id)
}

func TestApiSubmitSolutionMalformed(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/blocks/solution", "{").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": 1, "minerId": "alice"}).Code)
	require.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/blocks/solution", nil).Code)
}

func TestApiSubmitRateLimited(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, func(cfg *config.Api) {
		cfg.SubmitRate = config.Float64(0.001)
		cfg.SubmitBurst = config.Int(1)
	})
	block := f.currentBlock(t)
	body := map[string]interface{}{"blockId": block.Id, "nonce": findNonce(t, block.Hash, 1, false), "minerId": "alice"}

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/blocks/solution", body).Code)
	require.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/blocks/solution", body).Code)

	body["minerId"] = "bob"
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/blocks/solution", body).Code)
}

func TestApiAuthAndEnergy(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)

	rec := f.verify(t, `{"user":{"id":42,"username":"bob"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]interface{}](t, rec)
	require.Equal(t, true, resp["success"])

	account, err := f.store.Account(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "bob", account.Username)

	rec = f.do(t, http.MethodGet, "/api/users/42/energy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]int{"energy": 100}, decode[map[string]int](t, rec))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/users/42/energy", map[string]int{"energy": 0}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/users/42/energy", map[string]int{"energy": 55}).Code)
	for _, body := range []string{`{"energy":101}`, `{"energy":-1}`, `{"energy":5.5}`, `{"energy":"50"}`, `{}`} {
		require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/users/42/energy", body).Code, body)
	}

	rec = f.do(t, http.MethodGet, "/api/users/42/energy", nil)
	require.Equal(t, map[string]int{"energy": 55}, decode[map[string]int](t, rec))

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/users/nobody/energy", nil).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/users/nobody/energy", map[string]int{"energy": 1}).Code)
}

func TestApiAuthQueryFormat(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)

	rec := f.verify(t, "query_id=AAE&user=%7B%22id%22%3A7%7D&auth_date=1700000000")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	account, err := f.store.Account(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "user7", account.Username)

	require.Equal(t, http.StatusBadRequest, f.verify(t, `{"user":{}}`).Code)
	require.Equal(t, http.StatusBadRequest, f.verify(t, "garbage").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/auth/verify", "nope").Code)
}

func TestApiStats(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)
	require.Equal(t, http.StatusOK, f.verify(t, `{"user":{"id":"alice"}}`).Code)
	require.Equal(t, http.StatusOK, f.verify(t, `{"user":{"id":"bob"}}`).Code)

	ss, _ := newTestSession(t, 16)
	f.registry.Register("bob", ss)

	block := f.currentBlock(t)
	rec := f.do(t, http.MethodPost, "/api/blocks/solution", map[string]interface{}{"blockId": block.Id, "nonce": findNonce(t, block.Hash, 1, true), "minerId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stats/leaderboard?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[[]model.Account](t, rec)
	require.Len(t, board, 1)
	require.Equal(t, "alice", board[0].MinerId)
	require.Positive(t, board[0].TotalRewards)

	rec = f.do(t, http.MethodGet, "/api/stats/user/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		User    *model.Account `json:"user"`
		Rewards []model.Reward `json:"rewards"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotNil(t, stats.User)
	require.Len(t, stats.Rewards, 1)
	require.Equal(t, model.RewardKindParticipant, stats.Rewards[0].Kind)
	require.Equal(t, stats.Rewards[0].Amount, stats.User.TotalRewards)

	rec = f.do(t, http.MethodGet, "/api/stats/user/ghost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user":null,"rewards":[]}`, rec.Body.String())
}

func TestApiSignal(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/signal", `{"type":"offer","from":"a","to":"b","offer":{"sdp":"x"}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, map[string]string{"error": "Peer not found"}, decode[map[string]string](t, rec))

	ss, _ := newTestSession(t, 16)
	f.registry.Register("b", ss)
	rec = f.do(t, http.MethodPost, "/api/signal", `{"type":"offer","from":"a","to":"b","offer":{"sdp":"x"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "offer", nextFrame(t, ss)["type"])

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/signal", `{"type":"hello","from":"a","to":"b"}`).Code)
}

func TestApiOperational(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.org")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "mining_coordinator_presence_online_sessions"))
}

func TestPageSize(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]int{"": 10, "5": 5, "0": 10, "-3": 10, "abc": 10, "1000": maxPageSize} {
		req := httptest.NewRequest(http.MethodGet, "/api/blocks/history?limit="+raw, nil)
		require.Equal(t, want, pageSize(req, 10), raw)
	}
}

func TestApiAccountWritesInvalidateLeaderboard(t *testing.T) {
	t.Parallel()

	f := newApiFixture(t, nil)
	cache := &countingCache{}
	f.api.WithCache(cache)

	require.Equal(t, http.StatusOK, f.verify(t, `{"user":{"id":"alice"}}`).Code)
	require.Equal(t, 1, cache.invalidated)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/users/alice/energy", map[string]int{"energy": 40}).Code)
	require.Equal(t, 2, cache.invalidated)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/users/alice/energy", map[string]int{"energy": 400}).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/users/nobody/energy", map[string]int{"energy": 4}).Code)
	require.Equal(t, 2, cache.invalidated)
}
