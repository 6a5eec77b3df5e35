// Package reward содержит чистые функции расчёта наград по вкладам.
//
// Все расчёты ведутся в целочисленной арифметике базисных пунктов с
// усечением к нулю: награда никогда не округляется вверх, чтобы исключить
// переначисление. Функции не имеют побочных эффектов и идемпотентны.
package reward

import (
	"math/big"
	"time"

	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/tier"
)

const (
	// BpsDenominator задаёт знаменатель базисных пунктов (10000 = 100%).
	BpsDenominator = 10000

	// MaxModifierBps ограничивает суммарный эффект навыков одного типа.
	MaxModifierBps = 5000

	yearSeconds = 365 * 24 * 60 * 60
)

// Base возвращает сумму начисленных наград по всем вкладам на момент now.
// Для каждого вклада: amount * rate * elapsed / year. Вклады с неизвестным
// сроком блокировки пропускаются: ставка для них не определена.
func Base(deposits []model.Deposit, reg *tier.Registry, now time.Time) int64 {
	var total int64
	for _, d := range deposits {
		rate, err := reg.RateFor(d.LockupDays)
		if err != nil {
			continue
		}
		total += accrue(d.Amount, rate, now.Sub(d.AccruedFrom))
	}
	return total
}

// accrue вычисляет награду одного вклада. Промежуточное произведение
// amount*rate*seconds не помещается в int64, поэтому считается в big.Int,
// результат усечённого деления снова укладывается в int64.
func accrue(amount, rateBps int64, elapsed time.Duration) int64 {
	seconds := int64(elapsed / time.Second)
	if seconds <= 0 || amount <= 0 || rateBps <= 0 {
		return 0
	}

	num := new(big.Int).SetInt64(amount)
	num.Mul(num, big.NewInt(rateBps))
	num.Mul(num, big.NewInt(seconds))

	den := big.NewInt(BpsDenominator * int64(yearSeconds))
	num.Quo(num, den)

	return num.Int64()
}

// Boosted применяет к базовой награде аддитивную сумму эффектов активных
// навыков типа reward_boost: base * (10000 + sum(effect)) / 10000.
// Эффекты складываются, а не перемножаются.
func Boosted(base int64, skills []model.ActiveSkill) int64 {
	return applyBoost(base, boostBps(skills, nil))
}

// BoostedWithRarity дополнительно умножает эффект каждого навыка на множитель
// редкости его источника перед суммированием.
func BoostedWithRarity(base int64, skills []model.ActiveSkill, reg *tier.Registry) int64 {
	return applyBoost(base, boostBps(skills, reg))
}

func applyBoost(base, bps int64) int64 {
	if base <= 0 {
		return base
	}
	num := new(big.Int).SetInt64(base)
	num.Mul(num, big.NewInt(BpsDenominator+bps))
	num.Quo(num, big.NewInt(BpsDenominator))
	return num.Int64()
}

func boostBps(skills []model.ActiveSkill, reg *tier.Registry) int64 {
	var sum int64
	for _, sk := range skills {
		if sk.Type != model.SkillRewardBoost {
			continue
		}
		effect := sk.EffectBps
		if reg != nil {
			effect = effect * reg.RarityMultiplier(sk.Rarity) / BpsDenominator
		}
		sum += effect
	}
	return clampBps(sum)
}

// ReducedLockup возвращает эффективный срок блокировки с учётом навыков типа
// lock_reduction: аддитивная сумма эффектов с ограничением, затем усечённое
// уменьшение срока.
func ReducedLockup(lockupDays int, skills []model.ActiveSkill) int {
	reduction := clampBps(sumEffects(skills, model.SkillLockReduction))
	return int(int64(lockupDays) * (BpsDenominator - reduction) / BpsDenominator)
}

// FeeDiscount возвращает эффективную ставку комиссии с учётом навыков типа
// fee_discount, по той же схеме «сложить и ограничить».
func FeeDiscount(feeBps int64, skills []model.ActiveSkill) int64 {
	discount := clampBps(sumEffects(skills, model.SkillFeeDiscount))
	return feeBps * (BpsDenominator - discount) / BpsDenominator
}

func sumEffects(skills []model.ActiveSkill, t model.SkillType) int64 {
	var sum int64
	for _, sk := range skills {
		if sk.Type == t {
			sum += sk.EffectBps
		}
	}
	return sum
}

func clampBps(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > MaxModifierBps {
		return MaxModifierBps
	}
	return v
}
