// Package service реализует бизнес-логику стейкинг-пула: приём вкладов,
// начисление и выплату наград, реинвестирование и аварийный возврат средств.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/mmeshcher/stakepool-system/internal/commission"
	"github.com/mmeshcher/stakepool-system/internal/metrics"
	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/repository"
	"github.com/mmeshcher/stakepool-system/internal/reward"
	"github.com/mmeshcher/stakepool-system/internal/settlement"
	"github.com/mmeshcher/stakepool-system/internal/tier"
)

// Политика пула. Суммы в минимальных единицах учёта (сотых долях).
const (
	// MinDeposit задаёт минимальную сумму вклада до вычета комиссии.
	MinDeposit = 10_00
	// MaxDeposit задаёт максимальную сумму вклада до вычета комиссии.
	MaxDeposit = 1_000_000_00
	// DailyWithdrawalLimit ограничивает чистые выплаты наград за скользящее окно.
	DailyWithdrawalLimit = 10_000_00
	// MaxActionsPerDay ограничивает число изменяющих действий за скользящее окно.
	MaxActionsPerDay = 20
	// SuspiciousThreshold задаёт порог индекса подозрительности, после которого
	// пользователь помечается для ручной проверки (но не блокируется).
	SuspiciousThreshold = 3
	// AutoCompoundInterval задаёт минимальный интервал между авто-реинвестированиями.
	AutoCompoundInterval = 24 * time.Hour
	// MinAutoCompoundReward задаёт минимальную награду, при которой
	// авто-реинвестирование имеет смысл.
	MinAutoCompoundReward = 1_00

	// dayWindow задаёт скользящее суточное окно для лимитов: окно отсчитывается
	// от первого действия, а не по календарным суткам, без споров о часовых поясах.
	dayWindow = 24 * time.Hour

	autoCompoundBatchSize = 100
)

var (
	// ErrDepositTooLow возвращается для вклада меньше минимального.
	ErrDepositTooLow = errors.New("deposit below minimum")
	// ErrDepositTooHigh возвращается для вклада больше максимального.
	ErrDepositTooHigh = errors.New("deposit above maximum")
	// ErrContractPaused возвращается для изменяющих операций во время приостановки пула.
	ErrContractPaused = errors.New("contract paused")
	// ErrNotPaused возвращается при попытке аварийного вывода без приостановки пула.
	ErrNotPaused = errors.New("contract not paused")
	// ErrPoolInactive возвращается при приёме вкладов в выключенный пул ставок.
	ErrPoolInactive = errors.New("pool is not active")
	// ErrUserIsBanned возвращается для любой изменяющей операции заблокированного пользователя.
	ErrUserIsBanned = errors.New("user is banned")
	// ErrNoRewardsAvailable возвращается, когда начисленных наград нет.
	ErrNoRewardsAvailable = errors.New("no rewards available")
	// ErrNoDepositsFound возвращается, когда у пользователя нет вкладов.
	ErrNoDepositsFound = errors.New("no deposits found")
	// ErrDailyLimitExceeded возвращается при превышении суточного лимита выплат.
	ErrDailyLimitExceeded = errors.New("daily withdrawal limit exceeded")
	// ErrTooManyActionsToday возвращается при превышении суточного лимита действий.
	ErrTooManyActionsToday = errors.New("too many actions today")
	// ErrReentrancyDetected возвращается при вложенном вызове изменяющей операции
	// во время обращения к расчётному слою.
	ErrReentrancyDetected = errors.New("reentrancy detected")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, settlementAccount string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	AddDeposit(ctx context.Context, userID, amount int64, lockupDays int, now time.Time) error
	ListDeposits(ctx context.Context, userID int64) ([]model.Deposit, error)
	RemoveAllDeposits(ctx context.Context, userID int64, clearExtras bool) (int64, error)
	SettleRewardWithdrawal(ctx context.Context, userID int64, now, windowStart time.Time, withdrawnInWindow int64) error
	SettleCompound(ctx context.Context, userID, netReward int64, now time.Time) error
	SetAutoCompound(ctx context.Context, userID int64, enabled bool) error
	ListAutoCompoundUsers(ctx context.Context, limit int) ([]int64, error)
	GetActivity(ctx context.Context, userID int64) (*model.UserActivity, error)
	SaveActivity(ctx context.Context, act *model.UserActivity) error
	SetBanned(ctx context.Context, userID int64, banned bool, reason string) error
	ActivateSkill(ctx context.Context, userID int64, skill model.ActiveSkill) error
	DeactivateSkill(ctx context.Context, userID int64, sourceID string) error
	ListSkills(ctx context.Context, userID int64) ([]model.ActiveSkill, error)
	CreditQuestReward(ctx context.Context, userID, amount int64, achievement bool) error
	GetPoolState(ctx context.Context) (*model.PoolState, error)
	SetPaused(ctx context.Context, paused bool) error
}

// Service содержит бизнес-логику стейкинг-пула. Все изменяющие операции
// сериализуются общим мьютексом; обращения к расчётному слою идут строго
// после всех проверок и расчётов.
type Service struct {
	repo     Repository
	port     settlement.Port
	tiers    *tier.Registry
	treasury string

	mu  sync.Mutex
	now func() time.Time
}

// NewService создаёт сервис стейкинг-пула.
func NewService(repo Repository, port settlement.Port, tiers *tier.Registry, treasury string) *Service {
	return &Service{
		repo:     repo,
		port:     port,
		tiers:    tiers,
		treasury: treasury,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

type ctxKey int

const settlementCallKey ctxKey = iota

// markInFlight помечает контекст на время обращения к расчётному слою.
func markInFlight(ctx context.Context) context.Context {
	return context.WithValue(ctx, settlementCallKey, struct{}{})
}

// guard сериализует изменяющие операции и отклоняет вложенный вызов из
// обработчика перевода расчётного слоя.
func (s *Service) guard(ctx context.Context) (func(), error) {
	if ctx.Value(settlementCallKey) != nil {
		return nil, ErrReentrancyDetected
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password, settlementAccount string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, settlementAccount)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// Deposit принимает вклад пользователя. Границы суммы проверяются до вычета
// комиссии; зафиксированный принципал равен сумме за вычетом комиссии,
// которая в том же шаге уходит в казну через расчётный слой.
func (s *Service) Deposit(ctx context.Context, userID, amount int64, lockupDays int) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()

	if err := s.requireRunning(ctx); err != nil {
		return 0, err
	}
	if !s.tiers.Active() {
		return 0, ErrPoolInactive
	}
	if err := s.bumpActivity(ctx, userID, now); err != nil {
		return 0, err
	}

	if amount < MinDeposit {
		return 0, ErrDepositTooLow
	}
	if amount > MaxDeposit {
		return 0, ErrDepositTooHigh
	}
	if _, err := s.tiers.RateFor(lockupDays); err != nil {
		return 0, err
	}

	// Проверка лимита вкладов до перевода комиссии: иначе отказ после
	// перевода нарушил бы атомарность операции.
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(deposits) >= repository.MaxDepositsPerUser {
		return 0, repository.ErrMaxDepositsReached
	}

	net, fee := commission.Apply(amount, commission.DefaultRateBps)

	if fee > 0 {
		if err := s.port.Transfer(markInFlight(ctx), s.treasury, fee); err != nil {
			return 0, err
		}
	}

	if err := s.repo.AddDeposit(ctx, userID, net, lockupDays, now); err != nil {
		return 0, err
	}

	metrics.DepositsTotal.Inc()
	metrics.PoolBalance.Add(float64(net))

	return net, nil
}

// Deposits возвращает вклады пользователя.
func (s *Service) Deposits(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.repo.ListDeposits(ctx, userID)
}

// TotalDeposited возвращает суммарный принципал вкладов пользователя.
func (s *Service) TotalDeposited(ctx context.Context, userID int64) (int64, error) {
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return 0, err
	}
	return totalPrincipal(deposits), nil
}

func totalPrincipal(deposits []model.Deposit) int64 {
	var sum int64
	for _, d := range deposits {
		sum += d.Amount
	}
	return sum
}

// Rewards возвращает расчёт начисленных наград пользователя на текущий момент.
// Операция чистая: повторный вызов без изменения состояния даёт тот же результат.
func (s *Service) Rewards(ctx context.Context, userID int64) (*model.RewardBreakdown, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return nil, err
	}
	skills, err := s.repo.ListSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.breakdown(user, deposits, skills, s.now()), nil
}

func (s *Service) breakdown(user *model.User, deposits []model.Deposit, skills []model.ActiveSkill, now time.Time) *model.RewardBreakdown {
	base := reward.Base(deposits, s.tiers, now)
	b := &model.RewardBreakdown{
		Base:          base,
		Boosted:       reward.Boosted(base, skills),
		BoostedRarity: reward.BoostedWithRarity(base, skills, s.tiers),
		Quest:         user.QuestRewards,
		Achievement:   user.AchievementRewards,
	}
	b.Total = b.BoostedRarity + b.Quest + b.Achievement
	return b
}

// Withdraw выплачивает начисленные награды пользователя за вычетом комиссии,
// соблюдая суточный лимит выплат. Принципал вкладов не затрагивается.
func (s *Service) Withdraw(ctx context.Context, userID int64) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()

	if err := s.requireRunning(ctx); err != nil {
		return 0, err
	}
	if err := s.bumpActivity(ctx, userID, now); err != nil {
		return 0, err
	}

	user, deposits, skills, err := s.loadAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	gross := s.breakdown(user, deposits, skills, now).Total
	if gross <= 0 {
		return 0, ErrNoRewardsAvailable
	}

	feeBps := reward.FeeDiscount(commission.DefaultRateBps, skills)
	net, fee := commission.Apply(gross, feeBps)

	windowStart, withdrawn := rollWindow(user.WithdrawWindowStart, user.WithdrawnInWindow, now)
	if withdrawn+net > DailyWithdrawalLimit {
		return 0, ErrDailyLimitExceeded
	}

	// Сначала выплата пользователю, затем комиссия, затем фиксация в БД:
	// отказ на любом шаге оставляет сохранённое состояние неизменным.
	fctx := markInFlight(ctx)
	if err := s.port.Transfer(fctx, user.SettlementAccount, net); err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := s.port.Transfer(fctx, s.treasury, fee); err != nil {
			return 0, err
		}
	}

	if err := s.repo.SettleRewardWithdrawal(ctx, userID, now, windowStart, withdrawn+net); err != nil {
		return 0, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("reward").Inc()

	return net, nil
}

// WithdrawAll выплачивает принципал всех вкладов вместе с начисленными
// наградами (комиссия берётся только с наградной части) и удаляет вклады.
func (s *Service) WithdrawAll(ctx context.Context, userID int64) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()

	if err := s.requireRunning(ctx); err != nil {
		return 0, err
	}
	if err := s.bumpActivity(ctx, userID, now); err != nil {
		return 0, err
	}

	user, deposits, skills, err := s.loadAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(deposits) == 0 {
		return 0, ErrNoDepositsFound
	}

	principal := totalPrincipal(deposits)

	gross := s.breakdown(user, deposits, skills, now).Total
	feeBps := reward.FeeDiscount(commission.DefaultRateBps, skills)
	netReward, fee := commission.Apply(gross, feeBps)

	payout := principal + netReward

	fctx := markInFlight(ctx)
	if err := s.port.Transfer(fctx, user.SettlementAccount, payout); err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := s.port.Transfer(fctx, s.treasury, fee); err != nil {
			return 0, err
		}
	}

	if _, err := s.repo.RemoveAllDeposits(ctx, userID, true); err != nil {
		return 0, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("full").Inc()
	metrics.PoolBalance.Sub(float64(principal))

	return payout, nil
}

// Compound реинвестирует начисленные награды как новый вклад без блокировки.
func (s *Service) Compound(ctx context.Context, userID int64) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()

	if err := s.requireRunning(ctx); err != nil {
		return 0, err
	}
	if err := s.bumpActivity(ctx, userID, now); err != nil {
		return 0, err
	}

	net, err := s.compoundLocked(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	metrics.CompoundsTotal.WithLabelValues("manual").Inc()

	return net, nil
}

func (s *Service) compoundLocked(ctx context.Context, userID int64, now time.Time) (int64, error) {
	user, deposits, skills, err := s.loadAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	gross := s.breakdown(user, deposits, skills, now).Total
	if gross <= 0 {
		return 0, ErrNoRewardsAvailable
	}

	// Лимит вкладов проверяется до перевода комиссии.
	if len(deposits) >= repository.MaxDepositsPerUser {
		return 0, repository.ErrMaxDepositsReached
	}

	feeBps := reward.FeeDiscount(commission.DefaultRateBps, skills)
	net, fee := commission.Apply(gross, feeBps)
	if net <= 0 {
		return 0, ErrNoRewardsAvailable
	}

	if fee > 0 {
		if err := s.port.Transfer(markInFlight(ctx), s.treasury, fee); err != nil {
			return 0, err
		}
	}

	if err := s.repo.SettleCompound(ctx, userID, net, now); err != nil {
		return 0, err
	}

	metrics.PoolBalance.Add(float64(net))

	return net, nil
}

// EmergencyWithdraw возвращает пользователю 100% принципала без комиссии,
// наград и суточных лимитов. Доступен только при приостановленном пуле.
func (s *Service) EmergencyWithdraw(ctx context.Context, userID int64) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	pool, err := s.repo.GetPoolState(ctx)
	if err != nil {
		return 0, err
	}
	if !pool.Paused {
		return 0, ErrNotPaused
	}

	act, err := s.repo.GetActivity(ctx, userID)
	if err != nil {
		return 0, err
	}
	if act.Banned {
		return 0, ErrUserIsBanned
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(deposits) == 0 {
		return 0, ErrNoDepositsFound
	}

	principal := totalPrincipal(deposits)

	if err := s.port.Transfer(markInFlight(ctx), user.SettlementAccount, principal); err != nil {
		return 0, err
	}

	if _, err := s.repo.RemoveAllDeposits(ctx, userID, false); err != nil {
		return 0, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("emergency").Inc()
	metrics.PoolBalance.Sub(float64(principal))

	return principal, nil
}

// SetAutoCompound включает или выключает авто-реинвестирование пользователя.
func (s *Service) SetAutoCompound(ctx context.Context, userID int64, enabled bool) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	act, err := s.repo.GetActivity(ctx, userID)
	if err != nil {
		return err
	}
	if act.Banned {
		return ErrUserIsBanned
	}

	return s.repo.SetAutoCompound(ctx, userID, enabled)
}

// CheckAutoCompound сообщает, готов ли пользователь к авто-реинвестированию:
// опция включена, с последнего реинвестирования прошло не меньше интервала и
// ожидаемая награда превышает минимальный порог.
func (s *Service) CheckAutoCompound(ctx context.Context, userID int64) (bool, error) {
	user, deposits, skills, err := s.loadAccount(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.autoCompoundDue(user, deposits, skills, s.now()), nil
}

func (s *Service) autoCompoundDue(user *model.User, deposits []model.Deposit, skills []model.ActiveSkill, now time.Time) bool {
	if !user.AutoCompoundEnabled {
		return false
	}
	if user.LastCompoundAt != nil && now.Sub(*user.LastCompoundAt) < AutoCompoundInterval {
		return false
	}
	return s.breakdown(user, deposits, skills, now).Total >= MinAutoCompoundReward
}

// PerformAutoCompound выполняет реинвестирование от имени пользователя.
// Вызывается кипером, поэтому счётчики действий пользователя не трогает.
// Повторный вызов в том же интервале возвращает ErrNoRewardsAvailable.
func (s *Service) PerformAutoCompound(ctx context.Context, userID int64) (int64, error) {
	release, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()

	if err := s.requireRunning(ctx); err != nil {
		return 0, err
	}

	act, err := s.repo.GetActivity(ctx, userID)
	if err != nil {
		return 0, err
	}
	if act.Banned {
		return 0, ErrUserIsBanned
	}

	user, deposits, skills, err := s.loadAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !s.autoCompoundDue(user, deposits, skills, now) {
		return 0, ErrNoRewardsAvailable
	}

	net, err := s.compoundLocked(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	metrics.CompoundsTotal.WithLabelValues("auto").Inc()

	return net, nil
}

// BatchAutoCompound применяет авто-реинвестирование к каждому пользователю
// независимо: отказ по одному пользователю не прерывает обработку остальных,
// результат сообщается по каждому отдельно.
func (s *Service) BatchAutoCompound(ctx context.Context, userIDs []int64) []model.CompoundResult {
	res := make([]model.CompoundResult, 0, len(userIDs))
	for _, id := range userIDs {
		amount, err := s.PerformAutoCompound(ctx, id)
		res = append(res, model.CompoundResult{UserID: id, Amount: amount, Err: err})
	}
	return res
}

// AutoCompoundCandidates возвращает пользователей для очередного прохода кипера.
func (s *Service) AutoCompoundCandidates(ctx context.Context) ([]int64, error) {
	return s.repo.ListAutoCompoundUsers(ctx, autoCompoundBatchSize)
}

// NotifySkillActivation активирует навык пользователя. Авторизация доверенного
// нотификатора выполняется на транспортном уровне.
func (s *Service) NotifySkillActivation(ctx context.Context, login string, skill model.ActiveSkill) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	if skill.EffectBps <= 0 || skill.EffectBps > reward.MaxModifierBps {
		return errors.New("skill effect out of range")
	}

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}

	skill.ActivatedAt = s.now()
	if err := s.repo.ActivateSkill(ctx, user.ID, skill); err != nil {
		return err
	}

	metrics.SkillActivationsTotal.Inc()

	return nil
}

// NotifySkillDeactivation снимает навык пользователя по источнику.
func (s *Service) NotifySkillDeactivation(ctx context.Context, login, sourceID string) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}

	return s.repo.DeactivateSkill(ctx, user.ID, sourceID)
}

// CreditQuestReward начисляет разовую награду от внешней квестовой системы.
func (s *Service) CreditQuestReward(ctx context.Context, login string, amount int64, achievement bool) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	if amount <= 0 {
		return errors.New("reward amount must be positive")
	}

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}

	return s.repo.CreditQuestReward(ctx, user.ID, amount, achievement)
}

// Pause приостанавливает пул: все изменяющие операции, кроме аварийного
// вывода, отклоняются.
func (s *Service) Pause(ctx context.Context) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.repo.SetPaused(ctx, true)
}

// Unpause снимает приостановку пула.
func (s *Service) Unpause(ctx context.Context) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.repo.SetPaused(ctx, false)
}

// BanUser блокирует пользователя: любые его изменяющие операции отклоняются,
// чтение остаётся доступным. Блокировка — только явное действие администратора.
func (s *Service) BanUser(ctx context.Context, login, reason string) error {
	release, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return err
	}

	return s.repo.SetBanned(ctx, user.ID, true, reason)
}

// SetTierAPY изменяет ставку уровня блокировки. Уже начисленные за прошедшее
// время награды не пересчитываются.
func (s *Service) SetTierAPY(lockupDays int, bps int64) error {
	return s.tiers.SetTierAPY(lockupDays, bps)
}

// SetPoolActive включает или выключает приём новых вкладов.
func (s *Service) SetPoolActive(active bool) {
	s.tiers.SetActive(active)
}

// PoolStatus возвращает агрегатное состояние пула.
func (s *Service) PoolStatus(ctx context.Context) (*model.PoolState, error) {
	return s.repo.GetPoolState(ctx)
}

func (s *Service) requireRunning(ctx context.Context) error {
	pool, err := s.repo.GetPoolState(ctx)
	if err != nil {
		return err
	}
	if pool.Paused {
		return ErrContractPaused
	}
	return nil
}

func (s *Service) loadAccount(ctx context.Context, userID int64) (*model.User, []model.Deposit, []model.ActiveSkill, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	skills, err := s.repo.ListSkills(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return user, deposits, skills, nil
}

// bumpActivity учитывает изменяющее действие пользователя в скользящем окне.
// Счётчики сохраняются и при отказе: перебор лимита сам по себе — событие,
// которое должно попасть в историю.
func (s *Service) bumpActivity(ctx context.Context, userID int64, now time.Time) error {
	act, err := s.repo.GetActivity(ctx, userID)
	if err != nil {
		return err
	}
	if act.Banned {
		return ErrUserIsBanned
	}

	if act.WindowStart == nil || now.Sub(*act.WindowStart) >= dayWindow {
		ws := now
		act.WindowStart = &ws
		act.ActionsInWindow = 0
	}

	act.ActionsInWindow++

	if act.ActionsInWindow > MaxActionsPerDay {
		noteCapHit(act)
		if err := s.repo.SaveActivity(ctx, act); err != nil {
			return err
		}
		return ErrTooManyActionsToday
	}

	return s.repo.SaveActivity(ctx, act)
}

// noteCapHit обновляет серию переборов лимита. Индекс подозрительности растёт
// только при переборах в подряд идущих окнах и никогда не убывает.
func noteCapHit(act *model.UserActivity) {
	ws := *act.WindowStart
	if act.LastCapHitWindow != nil && ws.Equal(*act.LastCapHitWindow) {
		return
	}

	if act.LastCapHitWindow != nil && ws.Sub(*act.LastCapHitWindow) < 2*dayWindow {
		act.CapHitStreak++
	} else {
		act.CapHitStreak = 1
	}
	act.LastCapHitWindow = &ws

	if act.CapHitStreak > 1 {
		act.SuspiciousScore++
	}
	if act.SuspiciousScore >= SuspiciousThreshold {
		act.Flagged = true
	}
}

// rollWindow возвращает актуальное начало суточного окна выплат и уже
// выплаченную в нём сумму.
func rollWindow(start *time.Time, withdrawn int64, now time.Time) (time.Time, int64) {
	if start == nil || now.Sub(*start) >= dayWindow {
		return now, 0
	}
	return *start, withdrawn
}
