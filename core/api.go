package core

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"math"
	"mining-coordinator/config"
	"mining-coordinator/model"
	"mining-coordinator/util"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	maxPageSize   = 100
	maxBodyBytes  = 64 * 1024
	submitTimeout = 30 * time.Second
)

// Api HTTP 接口
type Api struct {
	cfg       *config.Api
	lifecycle *Lifecycle
	store     Store
	cache     LeaderboardCache
	relay     *Relay
	gateway   http.Handler

	submitLimiter *Limiter
	signalLimiter *Limiter

	srv *http.Server
	wg  sync.WaitGroup
}

func NewApi(cfg *config.Api, lifecycle *Lifecycle, store Store, relay *Relay, gateway http.Handler) *Api {
	return &Api{
		cfg:           cfg,
		lifecycle:     lifecycle,
		store:         store,
		relay:         relay,
		gateway:       gateway,
		submitLimiter: NewLimiter(*cfg.SubmitRate, *cfg.SubmitBurst),
		signalLimiter: NewLimiter(*cfg.SignalRate, *cfg.SignalBurst),
	}
}

// WithCache 排行榜读缓存
func (a *Api) WithCache(cache LeaderboardCache) *Api {
	a.cache = cache
	return a
}

// Handler 全部路由，外层包裹 CORS
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()

	if a.gateway != nil {
		mux.Handle("GET /ws", a.gateway)
		mux.Handle("GET /signal", a.gateway)
	}
	mux.HandleFunc("GET /api/blocks/current", a.handleCurrentBlock)
	mux.HandleFunc("POST /api/blocks/solution", a.handleSolution)
	mux.HandleFunc("GET /api/blocks/history", a.handleHistory)
	mux.HandleFunc("GET /api/blocks/{id}/rewards", a.handleBlockRewards)
	mux.HandleFunc("GET /api/stats/leaderboard", a.handleLeaderboard)
	mux.HandleFunc("GET /api/stats/user/{id}", a.handleUserStats)
	mux.HandleFunc("GET /api/users/{id}/energy", a.handleGetEnergy)
	mux.HandleFunc("POST /api/users/{id}/energy", a.handleSetEnergy)
	mux.HandleFunc("POST /api/signal", a.handleSignal)
	mux.HandleFunc("POST /api/auth/verify", a.handleAuthVerify)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	})

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(a.cfg.CorsOrigins) > 0 {
		opts.AllowedOrigins = a.cfg.CorsOrigins
	} else {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.New(opts).Handler(mux)
}

func (a *Api) Start() {
	a.srv = &http.Server{
		Addr:         *a.cfg.Listen,
		Handler:      a.Handler(),
		ReadTimeout:  util.MustParseDuration(*a.cfg.ReadTimeout),
		WriteTimeout: util.MustParseDuration(*a.cfg.WriteTimeout),
	}
	a.wg.Add(1)

	go a.listen()
}

func (a *Api) listen() {
	defer a.wg.Done()

	log.Infof("HTTP API listening on %s", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		// unexpected error. port in use?
		log.Fatalf("ListenAndServe(): %v", err)
	}
}

func (a *Api) Close() {
	if a.srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown(): %v", err)
	}

	a.wg.Wait()
}

func (a *Api) handleCurrentBlock(w http.ResponseWriter, r *http.Request) {
	block, err := a.lifecycle.CurrentBlock(r.Context())
	if err != nil {
		log.Errorf("Unable to load current block: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch current block")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

type solutionRequest struct {
	BlockId int64  `json:"blockId"`
	Nonce   string `json:"nonce"`
	MinerId string `json:"minerId"`
}

func (a *Api) handleSolution(w http.ResponseWriter, r *http.Request) {
	var req solutionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Nonce == "" || !util.IsValidMinerId(req.MinerId) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !a.submitLimiter.Allow(req.MinerId) {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	// 客户端断开不应中断结算
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), submitTimeout)
	defer cancel()

	st, err := a.lifecycle.SubmitSolution(ctx, req.BlockId, req.Nonce, req.MinerId)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"blockId":      req.BlockId,
			"reward":       st.SolverReward,
			"activeMiners": st.ActiveMiners,
		})
	case errors.Is(err, ErrUnknownBlock):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Invalid block", "reason": ErrUnknownBlock.Error()})
	case errors.Is(err, ErrAlreadyCompleted):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Invalid block", "reason": ErrAlreadyCompleted.Error()})
	case errors.Is(err, ErrInvalidNonce):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid solution", "reason": ErrInvalidNonce.Error()})
	default:
		writeError(w, http.StatusInternalServerError, "Failed to submit solution")
	}
}

func (a *Api) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.store.BlockHistory(r.Context(), pageSize(r, *a.cfg.HistoryLimit))
	if err != nil {
		log.Errorf("Failed to fetch block history: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch block history")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(history))
}

func (a *Api) handleBlockRewards(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid block id")
		return
	}
	rewards, err := a.store.BlockRewards(r.Context(), id)
	if err != nil {
		log.Errorf("Failed to fetch block rewards: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch block rewards")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rewards))
}

func (a *Api) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := pageSize(r, *a.cfg.LeaderboardLimit)
	if a.cache != nil {
		if accounts, ok := a.cache.Get(r.Context(), limit); ok {
			writeJSON(w, http.StatusOK, nonNil(accounts))
			return
		}
	}

	accounts, err := a.store.Leaderboard(r.Context(), limit)
	if err != nil {
		log.Errorf("Failed to fetch leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch leaderboard")
		return
	}
	if a.cache != nil {
		if err := a.cache.Set(r.Context(), limit, accounts); err != nil {
			log.Debugf("Unable to cache leaderboard: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, nonNil(accounts))
}

func (a *Api) handleUserStats(w http.ResponseWriter, r *http.Request) {
	minerId := r.PathValue("id")

	account, err := a.store.Account(r.Context(), minerId)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		log.Errorf("Failed to fetch account %s: %v", minerId, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch user stats")
		return
	}
	rewards, err := a.store.AccountRewards(r.Context(), minerId)
	if err != nil {
		log.Errorf("Failed to fetch rewards of %s: %v", minerId, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch user stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    account,
		"rewards": nonNil(rewards),
	})
}

func (a *Api) handleGetEnergy(w http.ResponseWriter, r *http.Request) {
	account, err := a.store.Account(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to fetch energy")
	default:
		writeJSON(w, http.StatusOK, map[string]int{"energy": account.Energy})
	}
}

func (a *Api) handleSetEnergy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Energy *float64 `json:"energy"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.Energy == nil {
		writeError(w, http.StatusBadRequest, "Invalid energy value")
		return
	}
	energy, err := parseEnergy(*req.Energy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid energy value")
		return
	}

	err = a.store.SetEnergy(r.Context(), r.PathValue("id"), energy)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case err != nil:
		log.Errorf("Failed to update energy: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update energy")
	default:
		a.invalidateLeaderboard(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// invalidateLeaderboard 账户写入后清除排行榜缓存
func (a *Api) invalidateLeaderboard(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		log.Warnf("Unable to invalidate leaderboard cache: %v", err)
	}
}

// parseEnergy 只接受 [0,100] 内的整数
func parseEnergy(v float64) (int, error) {
	if math.IsNaN(v) || v != math.Trunc(v) || v < model.EnergyMin || v > model.EnergyMax {
		return 0, ErrInvalidEnergy
	}
	return int(v), nil
}

func (a *Api) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !a.signalLimiter.Allow(limiterKey(req.From, r)) {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	err := a.relay.Relay(req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	case errors.Is(err, ErrPeerNotFound):
		writeError(w, http.StatusNotFound, "Peer not found")
	case errors.Is(err, ErrPeerBusy):
		writeError(w, http.StatusServiceUnavailable, "Peer is busy")
	default:
		writeError(w, http.StatusBadRequest, "Invalid signal")
	}
}

func limiterKey(id string, r *http.Request) string {
	if id != "" {
		return id
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// pageSize 读取 ?limit=，越界时回落到默认值
func pageSize(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Unable to write response: %v", err)
	}
}
