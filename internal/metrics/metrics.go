// Package metrics содержит счётчики Prometheus для операций стейкинг-пула.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsTotal считает принятые вклады.
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stakepool_deposits_total",
		Help: "Number of accepted deposits.",
	})

	// WithdrawalsTotal считает выплаты по видам: reward, full, emergency.
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakepool_withdrawals_total",
		Help: "Number of completed withdrawals by kind.",
	}, []string{"kind"})

	// CompoundsTotal считает реинвестирования по режимам: manual, auto.
	CompoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakepool_compounds_total",
		Help: "Number of completed compounds by mode.",
	}, []string{"mode"})

	// SkillActivationsTotal считает активации навыков доверенным нотификатором.
	SkillActivationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stakepool_skill_activations_total",
		Help: "Number of skill activations.",
	})

	// RejectionsTotal считает отклонённые операции по причинам.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakepool_rejections_total",
		Help: "Number of rejected operations by reason.",
	}, []string{"reason"})

	// PoolBalance отражает текущий суммарный принципал пула.
	PoolBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stakepool_pool_balance",
		Help: "Total principal held by the pool.",
	})

	// SweepUsersProcessed считает пользователей, обработанных проходами кипера.
	SweepUsersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stakepool_sweep_users_processed_total",
		Help: "Number of users processed by auto-compound sweeps.",
	})
)
