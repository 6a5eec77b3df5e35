// Package model содержит доменные сущности стейкинг-пула.
package model

import (
	"fmt"
	"time"
)

// User представляет зарегистрированного участника стейкинг-пула.
type User struct {
	ID                  int64
	Login               string
	PasswordHash        []byte
	SettlementAccount   string
	CreatedAt           time.Time
	HasDeposited        bool
	AutoCompoundEnabled bool
	LastCompoundAt      *time.Time
	QuestRewards        int64
	AchievementRewards  int64
	WithdrawWindowStart *time.Time
	WithdrawnInWindow   int64
}

// Deposit описывает один вклад пользователя. Сумма и дата создания
// неизменны; AccruedFrom сдвигается вперёд при выплате или реинвестировании
// наград, чтобы один и тот же период не оплачивался дважды.
type Deposit struct {
	ID          int64
	Amount      int64
	LockupDays  int
	CreatedAt   time.Time
	AccruedFrom time.Time
}

// SkillType определяет, на какой модификатор влияет активный навык.
type SkillType string

const (
	SkillRewardBoost   SkillType = "reward_boost"
	SkillFeeDiscount   SkillType = "fee_discount"
	SkillLockReduction SkillType = "lock_reduction"
)

// ParseSkillType проверяет и приводит строку к типу навыка.
func ParseSkillType(s string) (SkillType, error) {
	switch SkillType(s) {
	case SkillRewardBoost, SkillFeeDiscount, SkillLockReduction:
		return SkillType(s), nil
	}
	return "", fmt.Errorf("unknown skill type: %q", s)
}

// Rarity задаёт редкость источника навыка.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// ParseRarity проверяет и приводит строку к редкости.
func ParseRarity(s string) (Rarity, error) {
	switch Rarity(s) {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return Rarity(s), nil
	}
	return "", fmt.Errorf("unknown rarity: %q", s)
}

// ActiveSkill описывает действующий навык, выданный доверенным нотификатором.
// На одного пользователя допускается не более одного навыка на SourceID.
type ActiveSkill struct {
	SourceID    string
	Type        SkillType
	EffectBps   int64
	Rarity      Rarity
	ActivatedAt time.Time
}

// UserActivity хранит счётчики анти-фрод контроля пользователя.
type UserActivity struct {
	UserID           int64
	ActionsInWindow  int
	WindowStart      *time.Time
	CapHitStreak     int
	LastCapHitWindow *time.Time
	SuspiciousScore  int
	Flagged          bool
	Banned           bool
	BanReason        string
}

// PoolState описывает агрегатное состояние пула. TotalBalance всегда равен
// сумме принципала всех вкладов — центральный инвариант системы.
type PoolState struct {
	TotalBalance int64
	UniqueUsers  int64
	Paused       bool
	Migrated     bool
	Treasury     string
}

// RewardBreakdown содержит расчёт наград пользователя на текущий момент.
type RewardBreakdown struct {
	Base          int64 `json:"base"`
	Boosted       int64 `json:"boosted"`
	BoostedRarity int64 `json:"boosted_rarity"`
	Quest         int64 `json:"quest"`
	Achievement   int64 `json:"achievement"`
	Total         int64 `json:"total"`
}

// CompoundResult описывает результат авто-реинвестирования для одного
// пользователя в составе пакетной обработки.
type CompoundResult struct {
	UserID int64
	Amount int64
	Err    error
}
