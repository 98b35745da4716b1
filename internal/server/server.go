// Package server exposes the engine over HTTP: the payment webhook, user and
// pool read accessors, the withdrawal entry point, and CIDR-gated admin
// triggers.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgerd/internal/ledger"
	"ledgerd/internal/metrics"
	"ledgerd/internal/models"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	log          *slog.Logger
	engine       *ledger.Engine
	metrics      *metrics.Metrics
	allowedCIDRs []string
	router       chi.Router
}

func New(log *slog.Logger, engine *ledger.Engine, m *metrics.Metrics, reg *prometheus.Registry, allowedCIDRs []string) *Server {
	s := &Server{
		log:          log,
		engine:       engine,
		metrics:      m,
		allowedCIDRs: allowedCIDRs,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", s.handlePaymentWebhook)
		r.Get("/users/{address}", s.handleUserInfo)
		r.Post("/users/{address}/referral-code", s.handleGenerateCode)
		r.Post("/users/{address}/withdraw", s.handleWithdraw)
		r.Get("/pools", s.handlePools)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/pools/{pool}/distribute", s.handleDistribute)
			r.Post("/users/{address}/blacklist", s.handleBlacklist)
		})
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok"})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	u, err := s.engine.UserInfo(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: userView(u)})
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.engine.GenerateReferralCode(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"referral_code": code}})
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Message: "Bad request"})
		return
	}
	result, err := s.engine.Withdraw(r.Context(), chi.URLParam(r, "address"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]interface{}{
		"batch_id":   result.BatchID,
		"payout":     result.Payout,
		"reinvested": result.Reinvested,
	}})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools := s.engine.PoolBalances()
	data := make(map[string]interface{}, len(pools))
	for _, p := range pools {
		data[p.ID] = map[string]interface{}{
			"balance":           p.Balance,
			"total_distributed": p.TotalDistributed,
			"last_distribution": p.LastDistribution,
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.DistributePool(r.Context(), chi.URLParam(r, "pool"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: report})
}

type blacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Message: "Bad request"})
		return
	}
	if err := s.engine.SetBlacklisted(r.Context(), chi.URLParam(r, "address"), req.Blacklisted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true})
}

func userView(u *models.User) map[string]interface{} {
	code := ""
	if u.ReferralCode != nil {
		code = *u.ReferralCode
	}
	return map[string]interface{}{
		"id":               u.ID,
		"address":          u.Address,
		"sponsor":          u.Sponsor,
		"package_level":    u.PackageLevel,
		"total_investment": u.TotalInvestment,
		"total_earnings":   u.TotalEarnings,
		"earnings_cap":     u.EarningsCap,
		"balance":          u.Balance,
		"total_withdrawn":  u.TotalWithdrawn,
		"direct_referrals": u.DirectReferrals,
		"team_size":        u.TeamSize,
		"rank":             u.Rank,
		"referral_code":    code,
		"matrix_level":     u.MatrixLevel,
		"matrix_position":  u.MatrixPosition,
		"matrix_cycles":    u.MatrixCycles,
		"is_active":        u.IsActive,
		"is_blacklisted":   u.IsBlacklisted,
		"registered_at":    u.RegisteredAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotRegistered),
		errors.Is(err, ledger.ErrUnknownReferralCode),
		errors.Is(err, ledger.ErrUnknownPool):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicatePayment),
		errors.Is(err, ledger.ErrAlreadyHasCode),
		errors.Is(err, ledger.ErrDistributionAlreadyRun):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrAmountMismatch),
		errors.Is(err, ledger.ErrUnknownPackage),
		errors.Is(err, ledger.ErrSponsorRequired),
		errors.Is(err, ledger.ErrSponsorCycle),
		errors.Is(err, ledger.ErrPackageDowngrade),
		errors.Is(err, ledger.ErrPoolNotDistributable):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNoEligibleRecipients),
		errors.Is(err, ledger.ErrNothingToDistribute):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrBlacklisted):
		status = http.StatusForbidden
	}
	writeJSON(w, status, APIResponse{Success: false, Message: err.Error()})
}
