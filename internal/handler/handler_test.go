package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/stakepool-system/internal/middleware"
	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/service"
)

type stubService struct {
	registerID  int64
	registerErr error

	authID  int64
	authErr error

	depositNet int64
	depositErr error

	deposits    []model.Deposit
	depositsErr error

	rewards    *model.RewardBreakdown
	rewardsErr error

	withdrawNet int64
	withdrawErr error

	poolState *model.PoolState

	batchResults []model.CompoundResult
	candidates   []int64

	pausedCalls int
}

func (s *stubService) RegisterUser(ctx context.Context, login, password, settlementAccount string) (int64, error) {
	return s.registerID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authID, s.authErr
}

func (s *stubService) Deposit(ctx context.Context, userID, amount int64, lockupDays int) (int64, error) {
	return s.depositNet, s.depositErr
}

func (s *stubService) Deposits(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.deposits, s.depositsErr
}

func (s *stubService) TotalDeposited(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	for _, d := range s.deposits {
		sum += d.Amount
	}
	return sum, s.depositsErr
}

func (s *stubService) Rewards(ctx context.Context, userID int64) (*model.RewardBreakdown, error) {
	return s.rewards, s.rewardsErr
}

func (s *stubService) Withdraw(ctx context.Context, userID int64) (int64, error) {
	return s.withdrawNet, s.withdrawErr
}

func (s *stubService) WithdrawAll(ctx context.Context, userID int64) (int64, error) {
	return s.withdrawNet, s.withdrawErr
}

func (s *stubService) Compound(ctx context.Context, userID int64) (int64, error) {
	return s.withdrawNet, s.withdrawErr
}

func (s *stubService) EmergencyWithdraw(ctx context.Context, userID int64) (int64, error) {
	return s.withdrawNet, s.withdrawErr
}

func (s *stubService) SetAutoCompound(ctx context.Context, userID int64, enabled bool) error {
	return nil
}

func (s *stubService) NotifySkillActivation(ctx context.Context, login string, skill model.ActiveSkill) error {
	return nil
}

func (s *stubService) NotifySkillDeactivation(ctx context.Context, login, sourceID string) error {
	return nil
}

func (s *stubService) CreditQuestReward(ctx context.Context, login string, amount int64, achievement bool) error {
	return nil
}

func (s *stubService) Pause(ctx context.Context) error {
	s.pausedCalls++
	return nil
}

func (s *stubService) Unpause(ctx context.Context) error { return nil }

func (s *stubService) BanUser(ctx context.Context, login, reason string) error { return nil }

func (s *stubService) SetTierAPY(lockupDays int, bps int64) error { return nil }

func (s *stubService) SetPoolActive(active bool) {}

func (s *stubService) PoolStatus(ctx context.Context) (*model.PoolState, error) {
	return s.poolState, nil
}

func (s *stubService) AutoCompoundCandidates(ctx context.Context) ([]int64, error) {
	return s.candidates, nil
}

func (s *stubService) BatchAutoCompound(ctx context.Context, userIDs []int64) []model.CompoundResult {
	return s.batchResults
}

const (
	testAdminKey    = "admin-key"
	testNotifierKey = "notifier-key"
)

func newTestHandler(svc *stubService) (*Handler, *middleware.AuthMiddleware) {
	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, zap.NewNop(), auth, testAdminKey, testNotifierKey)
	return h, auth
}

func authCookie(auth *middleware.AuthMiddleware, userID int64) *http.Cookie {
	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, userID)
	return rec.Result().Cookies()[0]
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	svc := &stubService{registerID: 7}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/user/register", credentialsRequest{
		Login: "alice", Password: "secret", SettlementAccount: "acct-1",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatalf("register must set auth cookie")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := &stubService{}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	tests := []credentialsRequest{
		{Login: "", Password: "secret", SettlementAccount: "acct-1"},
		{Login: "ab", Password: "secret", SettlementAccount: "acct-1"},
		{Login: "alice", Password: "", SettlementAccount: "acct-1"},
		{Login: "alice", Password: "secret", SettlementAccount: ""},
		{Login: "alice", Password: "secret", SettlementAccount: "has space"},
	}

	for _, req := range tests {
		rec := doJSON(t, router, http.MethodPost, "/api/user/register", req, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %d", req, rec.Code)
		}
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/user/login", credentialsRequest{
		Login: "alice", Password: "wrong",
	}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDepositsRequireAuth(t *testing.T) {
	svc := &stubService{}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/user/deposits", depositRequest{Amount: 100_00}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}
}

func TestCreateDeposit(t *testing.T) {
	svc := &stubService{depositNet: 94_00}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(auth, 1)

	rec := doJSON(t, router, http.MethodPost, "/api/user/deposits", depositRequest{Amount: 100_00, LockupDays: 30}, func(r *http.Request) {
		r.AddCookie(cookie)
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var resp depositResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Principal != 94_00 {
		t.Fatalf("expected principal 9400, got %d", resp.Principal)
	}
}

func TestDepositErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"too low", service.ErrDepositTooLow, http.StatusBadRequest},
		{"paused", service.ErrContractPaused, http.StatusServiceUnavailable},
		{"banned", service.ErrUserIsBanned, http.StatusForbidden},
		{"rate limited", service.ErrTooManyActionsToday, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{depositErr: tt.err}
			h, auth := newTestHandler(svc)
			router := h.SetupRouter()
			cookie := authCookie(auth, 1)

			rec := doJSON(t, router, http.MethodPost, "/api/user/deposits", depositRequest{Amount: 100_00}, func(r *http.Request) {
				r.AddCookie(cookie)
			})

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestGetDepositsEmpty(t *testing.T) {
	svc := &stubService{}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(auth, 1)

	rec := doJSON(t, router, http.MethodGet, "/api/user/deposits", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestGetDeposits(t *testing.T) {
	svc := &stubService{deposits: []model.Deposit{
		{Amount: 94_00, LockupDays: 30},
		{Amount: 50_00, LockupDays: 0},
	}}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(auth, 1)

	rec := doJSON(t, router, http.MethodGet, "/api/user/deposits", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp depositsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalDeposited != 144_00 {
		t.Fatalf("expected total 14400, got %d", resp.TotalDeposited)
	}
	if len(resp.Deposits) != 2 {
		t.Fatalf("expected 2 deposits, got %d", len(resp.Deposits))
	}
}

func TestGetRewards(t *testing.T) {
	svc := &stubService{rewards: &model.RewardBreakdown{Base: 10_00, BoostedRarity: 11_00, Total: 16_00}}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(auth, 1)

	rec := doJSON(t, router, http.MethodGet, "/api/user/rewards", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp model.RewardBreakdown
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 16_00 {
		t.Fatalf("expected total 1600, got %d", resp.Total)
	}
}

func TestWithdrawInsufficientRewards(t *testing.T) {
	svc := &stubService{withdrawErr: service.ErrNoRewardsAvailable}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()
	cookie := authCookie(auth, 1)

	rec := doJSON(t, router, http.MethodPost, "/api/user/rewards/withdraw", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

func TestAdminRequiresKey(t *testing.T) {
	svc := &stubService{}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/admin/pause", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/admin/pause", nil, func(r *http.Request) {
		r.Header.Set("X-Admin-Key", testAdminKey)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
	if svc.pausedCalls != 1 {
		t.Fatalf("pause must be invoked once, got %d", svc.pausedCalls)
	}
}

func TestNotifierSkillValidation(t *testing.T) {
	svc := &stubService{}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	withKey := func(r *http.Request) { r.Header.Set("X-Notifier-Key", testNotifierKey) }

	rec := doJSON(t, router, http.MethodPost, "/api/notifier/skills/activate", skillActivationRequest{
		Login: "alice", SourceID: "nft-1", SkillType: "unknown", EffectBps: 500, Rarity: "rare",
	}, withKey)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown skill type, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/notifier/skills/activate", skillActivationRequest{
		Login: "alice", SourceID: "nft-1", SkillType: "reward_boost", EffectBps: 500, Rarity: "mythic",
	}, withKey)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown rarity, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/notifier/skills/activate", skillActivationRequest{
		Login: "alice", SourceID: "nft-1", SkillType: "reward_boost", EffectBps: 500, Rarity: "rare",
	}, withKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid skill, got %d", rec.Code)
	}
}

func TestSweep(t *testing.T) {
	svc := &stubService{
		candidates: []int64{1, 2},
		batchResults: []model.CompoundResult{
			{UserID: 1, Amount: 94_00},
			{UserID: 2, Err: service.ErrNoRewardsAvailable},
		},
	}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/admin/sweep", nil, func(r *http.Request) {
		r.Header.Set("X-Admin-Key", testAdminKey)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []sweepResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected result per user, got %d", len(resp))
	}
	if resp[0].Amount != 94_00 || resp[0].Error != "" {
		t.Fatalf("unexpected first result: %+v", resp[0])
	}
	if resp[1].Error == "" {
		t.Fatalf("second result must carry the error")
	}
}
