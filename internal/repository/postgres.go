// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/stakepool-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrMaxDepositsReached возвращается при превышении лимита вкладов одного пользователя.
	ErrMaxDepositsReached = errors.New("max deposits reached")
	// ErrSkillAlreadyActive возвращается при повторной активации навыка с тем же источником.
	ErrSkillAlreadyActive = errors.New("skill already active")
	// ErrSkillNotFound возвращается при деактивации несуществующего навыка.
	ErrSkillNotFound = errors.New("skill not found")
)

// MaxDepositsPerUser ограничивает количество одновременных вкладов пользователя.
const MaxDepositsPerUser = 300

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks,
		// с переподключением pgxpool справляется сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя со счётом в расчётном слое.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, settlementAccount string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, settlement_account) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, settlementAccount,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const userColumns = `id, login, password_hash, settlement_account, created_at,
	 has_deposited, auto_compound_enabled, last_compound_at,
	 quest_rewards, achievement_rewards, withdraw_window_start, withdrawn_in_window`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.SettlementAccount, &u.CreatedAt,
		&u.HasDeposited, &u.AutoCompoundEnabled, &u.LastCompoundAt,
		&u.QuestRewards, &u.AchievementRewards, &u.WithdrawWindowStart, &u.WithdrawnInWindow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = $1`, login))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// AddDeposit добавляет вклад пользователю. В той же транзакции поддерживается
// инвариант пула: total_balance увеличивается ровно на сумму вклада, а счётчик
// уникальных вкладчиков — один раз за первый вклад пользователя.
func (r *PostgresRepository) AddDeposit(ctx context.Context, userID, amount int64, lockupDays int, now time.Time) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем строку пользователя для сериализации изменений его вкладов.
		var hasDeposited bool
		err = tx.QueryRow(ctx,
			`SELECT has_deposited FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&hasDeposited)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM deposits WHERE user_id = $1`, userID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count deposits: %w", err)
		}
		if count >= MaxDepositsPerUser {
			return ErrMaxDepositsReached
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO deposits (user_id, amount, lockup_days, created_at, accrued_from)
			 VALUES ($1, $2, $3, $4, $4)`,
			userID, amount, lockupDays, now,
		)
		if err != nil {
			return fmt.Errorf("insert deposit: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE pool SET total_balance = total_balance + $1,
			 unique_users = unique_users + CASE WHEN $2 THEN 0 ELSE 1 END`,
			amount, hasDeposited,
		)
		if err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		if !hasDeposited {
			_, err = tx.Exec(ctx, `UPDATE users SET has_deposited = TRUE WHERE id = $1`, userID)
			if err != nil {
				return fmt.Errorf("mark user deposited: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ListDeposits возвращает вклады пользователя в порядке создания.
func (r *PostgresRepository) ListDeposits(ctx context.Context, userID int64) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, amount, lockup_days, created_at, accrued_from
		 FROM deposits
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	defer rows.Close()

	var res []model.Deposit
	for rows.Next() {
		var d model.Deposit
		if err := rows.Scan(&d.ID, &d.Amount, &d.LockupDays, &d.CreatedAt, &d.AccruedFrom); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// RemoveAllDeposits удаляет все вклады пользователя и уменьшает баланс пула на
// их суммарный принципал. При clearExtras дополнительно обнуляются квестовые
// и ачивочные награды (путь withdrawAll: они выплачены вместе с наградами).
func (r *PostgresRepository) RemoveAllDeposits(ctx context.Context, userID int64, clearExtras bool) (int64, error) {
	var principal int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		err = tx.QueryRow(ctx,
			`WITH removed AS (
				DELETE FROM deposits WHERE user_id = $1 RETURNING amount
			 )
			 SELECT COALESCE(SUM(amount), 0) FROM removed`,
			userID,
		).Scan(&principal)
		if err != nil {
			return fmt.Errorf("delete deposits: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE pool SET total_balance = total_balance - $1`, principal)
		if err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		if clearExtras {
			_, err = tx.Exec(ctx,
				`UPDATE users SET quest_rewards = 0, achievement_rewards = 0 WHERE id = $1`, userID)
			if err != nil {
				return fmt.Errorf("clear extra rewards: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return principal, nil
}

// SettleRewardWithdrawal фиксирует выплату наград: точка начисления всех
// вкладов сдвигается на момент выплаты, разовые награды обнуляются,
// обновляется суточное окно выплат.
func (r *PostgresRepository) SettleRewardWithdrawal(ctx context.Context, userID int64, now, windowStart time.Time, withdrawnInWindow int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`UPDATE deposits SET accrued_from = $2 WHERE user_id = $1`, userID, now)
		if err != nil {
			return fmt.Errorf("reset accrual: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET quest_rewards = 0, achievement_rewards = 0,
			 withdraw_window_start = $2, withdrawn_in_window = $3
			 WHERE id = $1`,
			userID, windowStart, withdrawnInWindow)
		if err != nil {
			return fmt.Errorf("update withdraw window: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// SettleCompound реинвестирует чистую награду как новый вклад без блокировки:
// в одной транзакции сбрасывается точка начисления существующих вкладов,
// добавляется новый вклад и на его сумму увеличивается баланс пула.
func (r *PostgresRepository) SettleCompound(ctx context.Context, userID, netReward int64, now time.Time) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM deposits WHERE user_id = $1`, userID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count deposits: %w", err)
		}
		if count >= MaxDepositsPerUser {
			return ErrMaxDepositsReached
		}

		_, err = tx.Exec(ctx,
			`UPDATE deposits SET accrued_from = $2 WHERE user_id = $1`, userID, now)
		if err != nil {
			return fmt.Errorf("reset accrual: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO deposits (user_id, amount, lockup_days, created_at, accrued_from)
			 VALUES ($1, $2, 0, $3, $3)`,
			userID, netReward, now)
		if err != nil {
			return fmt.Errorf("insert compound deposit: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET quest_rewards = 0, achievement_rewards = 0, last_compound_at = $2
			 WHERE id = $1`,
			userID, now)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE pool SET total_balance = total_balance + $1`, netReward)
		if err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// SetAutoCompound включает или выключает авто-реинвестирование пользователя.
func (r *PostgresRepository) SetAutoCompound(ctx context.Context, userID int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET auto_compound_enabled = $2 WHERE id = $1`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set auto compound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListAutoCompoundUsers возвращает идентификаторы пользователей с включённым
// авто-реинвестированием, начиная с тех, кого дольше всех не обрабатывали.
func (r *PostgresRepository) ListAutoCompoundUsers(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM users
		 WHERE auto_compound_enabled
		 ORDER BY last_compound_at ASC NULLS FIRST
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select auto compound users: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetActivity возвращает счётчики анти-фрод контроля пользователя.
// Для пользователя без истории возвращается нулевая запись.
func (r *PostgresRepository) GetActivity(ctx context.Context, userID int64) (*model.UserActivity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT actions_in_window, window_start, cap_hit_streak, last_cap_hit_window,
		 suspicious_score, flagged, banned, ban_reason
		 FROM activity WHERE user_id = $1`,
		userID,
	)

	act := model.UserActivity{UserID: userID}
	err := row.Scan(&act.ActionsInWindow, &act.WindowStart, &act.CapHitStreak, &act.LastCapHitWindow,
		&act.SuspiciousScore, &act.Flagged, &act.Banned, &act.BanReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &act, nil
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}

	return &act, nil
}

// SaveActivity сохраняет счётчики анти-фрод контроля пользователя.
func (r *PostgresRepository) SaveActivity(ctx context.Context, act *model.UserActivity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity (user_id, actions_in_window, window_start, cap_hit_streak,
		 last_cap_hit_window, suspicious_score, flagged, banned, ban_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id) DO UPDATE SET
		 actions_in_window = EXCLUDED.actions_in_window,
		 window_start = EXCLUDED.window_start,
		 cap_hit_streak = EXCLUDED.cap_hit_streak,
		 last_cap_hit_window = EXCLUDED.last_cap_hit_window,
		 suspicious_score = EXCLUDED.suspicious_score,
		 flagged = EXCLUDED.flagged,
		 banned = EXCLUDED.banned,
		 ban_reason = EXCLUDED.ban_reason`,
		act.UserID, act.ActionsInWindow, act.WindowStart, act.CapHitStreak,
		act.LastCapHitWindow, act.SuspiciousScore, act.Flagged, act.Banned, act.BanReason,
	)
	if err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

// SetBanned блокирует или разблокирует пользователя.
func (r *PostgresRepository) SetBanned(ctx context.Context, userID int64, banned bool, reason string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity (user_id, banned, ban_reason) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET banned = EXCLUDED.banned, ban_reason = EXCLUDED.ban_reason`,
		userID, banned, reason,
	)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

// ActivateSkill сохраняет активный навык пользователя. Повторная активация
// того же источника отклоняется.
func (r *PostgresRepository) ActivateSkill(ctx context.Context, userID int64, skill model.ActiveSkill) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO skills (user_id, source_id, skill_type, effect_bps, rarity, activated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, skill.SourceID, string(skill.Type), skill.EffectBps, string(skill.Rarity), skill.ActivatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: source %s", ErrSkillAlreadyActive, skill.SourceID)
		}
		return fmt.Errorf("activate skill: %w", err)
	}
	return nil
}

// DeactivateSkill удаляет активный навык по источнику.
func (r *PostgresRepository) DeactivateSkill(ctx context.Context, userID int64, sourceID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM skills WHERE user_id = $1 AND source_id = $2`, userID, sourceID)
	if err != nil {
		return fmt.Errorf("deactivate skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: source %s", ErrSkillNotFound, sourceID)
	}
	return nil
}

// ListSkills возвращает активные навыки пользователя.
func (r *PostgresRepository) ListSkills(ctx context.Context, userID int64) ([]model.ActiveSkill, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT source_id, skill_type, effect_bps, rarity, activated_at
		 FROM skills WHERE user_id = $1 ORDER BY activated_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select skills: %w", err)
	}
	defer rows.Close()

	var res []model.ActiveSkill
	for rows.Next() {
		var (
			sk        model.ActiveSkill
			skillType string
			rarityStr string
		)
		if err := rows.Scan(&sk.SourceID, &skillType, &sk.EffectBps, &rarityStr, &sk.ActivatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		sk.Type = model.SkillType(skillType)
		sk.Rarity = model.Rarity(rarityStr)
		res = append(res, sk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreditQuestReward начисляет пользователю разовую награду от внешней квестовой
// системы: квестовую или ачивочную.
func (r *PostgresRepository) CreditQuestReward(ctx context.Context, userID, amount int64, achievement bool) error {
	var query string
	if achievement {
		query = `UPDATE users SET achievement_rewards = achievement_rewards + $2 WHERE id = $1`
	} else {
		query = `UPDATE users SET quest_rewards = quest_rewards + $2 WHERE id = $1`
	}

	tag, err := r.pool.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("credit reward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetPoolState возвращает агрегатное состояние пула.
func (r *PostgresRepository) GetPoolState(ctx context.Context) (*model.PoolState, error) {
	var st model.PoolState
	err := r.pool.QueryRow(ctx,
		`SELECT total_balance, unique_users, paused, migrated, treasury FROM pool`,
	).Scan(&st.TotalBalance, &st.UniqueUsers, &st.Paused, &st.Migrated, &st.Treasury)
	if err != nil {
		return nil, fmt.Errorf("get pool state: %w", err)
	}
	return &st, nil
}

// SetPaused устанавливает флаг аварийной приостановки пула.
func (r *PostgresRepository) SetPaused(ctx context.Context, paused bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE pool SET paused = $1`, paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}
