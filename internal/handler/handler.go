// Package handler содержит HTTP-обработчики API стейкинг-пула.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/stakepool-system/internal/metrics"
	"github.com/mmeshcher/stakepool-system/internal/middleware"
	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/repository"
	"github.com/mmeshcher/stakepool-system/internal/service"
	"github.com/mmeshcher/stakepool-system/internal/settlement"
	"github.com/mmeshcher/stakepool-system/internal/tier"
	"github.com/mmeshcher/stakepool-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, settlementAccount string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	Deposit(ctx context.Context, userID, amount int64, lockupDays int) (int64, error)
	Deposits(ctx context.Context, userID int64) ([]model.Deposit, error)
	TotalDeposited(ctx context.Context, userID int64) (int64, error)
	Rewards(ctx context.Context, userID int64) (*model.RewardBreakdown, error)
	Withdraw(ctx context.Context, userID int64) (int64, error)
	WithdrawAll(ctx context.Context, userID int64) (int64, error)
	Compound(ctx context.Context, userID int64) (int64, error)
	EmergencyWithdraw(ctx context.Context, userID int64) (int64, error)
	SetAutoCompound(ctx context.Context, userID int64, enabled bool) error
	NotifySkillActivation(ctx context.Context, login string, skill model.ActiveSkill) error
	NotifySkillDeactivation(ctx context.Context, login, sourceID string) error
	CreditQuestReward(ctx context.Context, login string, amount int64, achievement bool) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	BanUser(ctx context.Context, login, reason string) error
	SetTierAPY(lockupDays int, bps int64) error
	SetPoolActive(active bool)
	PoolStatus(ctx context.Context) (*model.PoolState, error)
	AutoCompoundCandidates(ctx context.Context) ([]int64, error)
	BatchAutoCompound(ctx context.Context, userIDs []int64) []model.CompoundResult
}

// Handler реализует HTTP-обработчики API стейкинг-пула.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminKey       string
	notifierKey    string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminKey, notifierKey string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminKey:       adminKey,
		notifierKey:    notifierKey,
	}
}

// statusForError сопоставляет доменную ошибку HTTP-статусу и причине для метрик.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDepositTooLow):
		return http.StatusBadRequest, "deposit_too_low"
	case errors.Is(err, service.ErrDepositTooHigh):
		return http.StatusBadRequest, "deposit_too_high"
	case errors.Is(err, tier.ErrInvalidLockupDuration):
		return http.StatusUnprocessableEntity, "invalid_lockup"
	case errors.Is(err, repository.ErrMaxDepositsReached):
		return http.StatusConflict, "max_deposits"
	case errors.Is(err, service.ErrContractPaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, service.ErrPoolInactive):
		return http.StatusServiceUnavailable, "pool_inactive"
	case errors.Is(err, service.ErrNotPaused):
		return http.StatusConflict, "not_paused"
	case errors.Is(err, service.ErrUserIsBanned):
		return http.StatusForbidden, "banned"
	case errors.Is(err, service.ErrTooManyActionsToday):
		return http.StatusTooManyRequests, "too_many_actions"
	case errors.Is(err, service.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests, "daily_limit"
	case errors.Is(err, service.ErrNoRewardsAvailable):
		return http.StatusPaymentRequired, "no_rewards"
	case errors.Is(err, service.ErrNoDepositsFound):
		return http.StatusPaymentRequired, "no_deposits"
	case errors.Is(err, settlement.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, repository.ErrSkillNotFound):
		return http.StatusNotFound, "skill_not_found"
	case errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, repository.ErrSkillAlreadyActive):
		return http.StatusConflict, "skill_already_active"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status, reason := statusForError(err)
	metrics.RejectionsTotal.WithLabelValues(reason).Inc()
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type credentialsRequest struct {
	Login             string `json:"login"`
	Password          string `json:"password"`
	SettlementAccount string `json:"settlement_account,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidLogin(req.Login) || req.Password == "" || !validation.IsValidAccount(req.SettlementAccount) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.SettlementAccount)
	if err != nil {
		h.writeError(w, "register user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type depositRequest struct {
	Amount     int64 `json:"amount"`
	LockupDays int   `json:"lockup_days"`
}

type depositResponse struct {
	Principal   int64  `json:"principal"`
	LockupDays  int    `json:"lockup_days"`
	CreatedAt   string `json:"created_at,omitempty"`
	AccruedFrom string `json:"accrued_from,omitempty"`
}

// CreateDeposit принимает вклад от текущего пользователя.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	principal, err := h.service.Deposit(r.Context(), userID, req.Amount, req.LockupDays)
	if err != nil {
		h.writeError(w, "deposit", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(depositResponse{Principal: principal, LockupDays: req.LockupDays}); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// GetDeposits возвращает список вкладов текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	deposits, err := h.service.Deposits(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get deposits", err)
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	total, err := h.service.TotalDeposited(r.Context(), userID)
	if err != nil {
		h.writeError(w, "total deposited", err)
		return
	}

	items := make([]depositResponse, 0, len(deposits))
	for _, d := range deposits {
		items = append(items, depositResponse{
			Principal:   d.Amount,
			LockupDays:  d.LockupDays,
			CreatedAt:   d.CreatedAt.Format(time.RFC3339),
			AccruedFrom: d.AccruedFrom.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, depositsResponse{TotalDeposited: total, Deposits: items})
}

type depositsResponse struct {
	TotalDeposited int64             `json:"total_deposited"`
	Deposits       []depositResponse `json:"deposits"`
}

// GetRewards возвращает расчёт наград текущего пользователя.
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	rewards, err := h.service.Rewards(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get rewards", err)
		return
	}

	h.writeJSON(w, rewards)
}

type amountResponse struct {
	Amount int64 `json:"amount"`
}

// Withdraw выплачивает начисленные награды текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	net, err := h.service.Withdraw(r.Context(), userID)
	if err != nil {
		h.writeError(w, "withdraw", err)
		return
	}

	h.writeJSON(w, amountResponse{Amount: net})
}

// WithdrawAll выплачивает принципал и награды и закрывает все вклады.
func (h *Handler) WithdrawAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payout, err := h.service.WithdrawAll(r.Context(), userID)
	if err != nil {
		h.writeError(w, "withdraw all", err)
		return
	}

	h.writeJSON(w, amountResponse{Amount: payout})
}

// Compound реинвестирует награды текущего пользователя.
func (h *Handler) Compound(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	net, err := h.service.Compound(r.Context(), userID)
	if err != nil {
		h.writeError(w, "compound", err)
		return
	}

	h.writeJSON(w, amountResponse{Amount: net})
}

// EmergencyWithdraw возвращает принципал при приостановленном пуле.
func (h *Handler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	principal, err := h.service.EmergencyWithdraw(r.Context(), userID)
	if err != nil {
		h.writeError(w, "emergency withdraw", err)
		return
	}

	h.writeJSON(w, amountResponse{Amount: principal})
}

type autoCompoundRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoCompound включает или выключает авто-реинвестирование для текущего пользователя.
func (h *Handler) SetAutoCompound(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req autoCompoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetAutoCompound(r.Context(), userID, req.Enabled); err != nil {
		h.writeError(w, "set auto compound", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
