// Package keeper содержит внешнего инициатора авто-реинвестирования:
// периодический проход по пользователям с включённой опцией. В ядре нет
// собственного таймера — реинвестирование всегда запускается извне.
package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/stakepool-system/internal/metrics"
	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/service"
)

// Service описывает операции сервиса, используемые кипером.
type Service interface {
	AutoCompoundCandidates(ctx context.Context) ([]int64, error)
	BatchAutoCompound(ctx context.Context, userIDs []int64) []model.CompoundResult
}

// Keeper запускает проходы авто-реинвестирования по cron-расписанию.
type Keeper struct {
	cron   *cron.Cron
	svc    Service
	logger *zap.Logger
}

// New создаёт кипер с указанным сервисом.
func New(svc Service, logger *zap.Logger) *Keeper {
	return &Keeper{
		cron:   cron.New(cron.WithSeconds()),
		svc:    svc,
		logger: logger,
	}
}

// Register регистрирует проход по cron-выражению (с секундами).
func (k *Keeper) Register(spec string) error {
	if _, err := k.cron.AddFunc(spec, k.Sweep); err != nil {
		return err
	}
	return nil
}

// Start запускает планировщик.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started")
}

// Stop останавливает планировщик и дожидается завершения текущего прохода.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.logger.Info("keeper stopped")
}

// Sweep выполняет один проход: отказ по одному пользователю не прерывает
// обработку остальных, результат логируется по каждому отдельно.
func (k *Keeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	users, err := k.svc.AutoCompoundCandidates(ctx)
	if err != nil {
		k.logger.Error("list auto compound candidates", zap.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	results := k.svc.BatchAutoCompound(ctx, users)

	var compounded, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err == nil:
			compounded++
			k.logger.Info("auto compound",
				zap.Int64("userID", r.UserID), zap.Int64("amount", r.Amount))
		case errors.Is(r.Err, service.ErrNoRewardsAvailable):
			skipped++
		default:
			failed++
			k.logger.Warn("auto compound failed",
				zap.Int64("userID", r.UserID), zap.Error(r.Err))
		}
	}

	metrics.SweepUsersProcessed.Add(float64(len(results)))

	k.logger.Info("auto compound sweep finished",
		zap.Int("users", len(results)),
		zap.Int("compounded", compounded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
}
