// Package tier содержит реестр ставок по срокам блокировки и множителей редкости.
package tier

import (
	"errors"
	"sort"
	"sync"

	"github.com/mmeshcher/stakepool-system/internal/model"
)

// ErrInvalidLockupDuration возвращается для срока блокировки вне допустимого набора.
var ErrInvalidLockupDuration = errors.New("invalid lockup duration")

// Ставки APY по умолчанию в базисных пунктах для допустимых сроков блокировки.
var defaultAPY = map[int]int64{
	0:   1000,
	30:  1200,
	90:  1500,
	180: 2000,
	365: 3000,
}

// Множители редкости в базисных пунктах от единицы (10000 = x1.0).
var defaultRarity = map[model.Rarity]int64{
	model.RarityCommon:    10000,
	model.RarityUncommon:  11000,
	model.RarityRare:      12500,
	model.RarityEpic:      15000,
	model.RarityLegendary: 20000,
}

// Registry хранит конфигурацию ставок. Административные изменения атомарны и
// не пересчитывают уже начисленные награды: начисление идёт инкрементально
// от точки последней выплаты.
type Registry struct {
	mu     sync.RWMutex
	apyBps map[int]int64
	rarity map[model.Rarity]int64
	active bool
}

// NewRegistry создаёт реестр со ставками по умолчанию.
func NewRegistry() *Registry {
	apy := make(map[int]int64, len(defaultAPY))
	for k, v := range defaultAPY {
		apy[k] = v
	}
	rar := make(map[model.Rarity]int64, len(defaultRarity))
	for k, v := range defaultRarity {
		rar[k] = v
	}
	return &Registry{
		apyBps: apy,
		rarity: rar,
		active: true,
	}
}

// RateFor возвращает ставку APY в базисных пунктах для срока блокировки.
func (r *Registry) RateFor(lockupDays int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bps, ok := r.apyBps[lockupDays]
	if !ok {
		return 0, ErrInvalidLockupDuration
	}
	return bps, nil
}

// RarityMultiplier возвращает множитель редкости в базисных пунктах.
// Неизвестная редкость трактуется как обычная (x1.0).
func (r *Registry) RarityMultiplier(rarity model.Rarity) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.rarity[rarity]; ok {
		return m
	}
	return 10000
}

// SetTierAPY изменяет ставку существующего уровня. Новые сроки блокировки не
// добавляются: допустимый набор фиксирован.
func (r *Registry) SetTierAPY(lockupDays int, bps int64) error {
	if bps < 0 {
		return errors.New("apy must not be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apyBps[lockupDays]; !ok {
		return ErrInvalidLockupDuration
	}
	r.apyBps[lockupDays] = bps
	return nil
}

// SetActive включает или выключает приём новых вкладов на уровне пула ставок.
func (r *Registry) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// Active сообщает, принимает ли реестр новые вклады.
func (r *Registry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// AdmissibleLockups возвращает отсортированный список допустимых сроков блокировки.
func (r *Registry) AdmissibleLockups() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]int, 0, len(r.apyBps))
	for d := range r.apyBps {
		res = append(res, d)
	}
	sort.Ints(res)
	return res
}
