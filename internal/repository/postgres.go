// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/900f/Phantom/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrBoosterExists возвращается при попытке добавить бустера с уже занятым id или именем.
var (
	ErrBoosterExists = errors.New("booster already exists")
	// ErrBoosterNotFound возвращается, если бустер с указанным именем не найден.
	ErrBoosterNotFound = errors.New("booster not found")
	// ErrBoosterUnavailable возвращается, если бустер занят к моменту оформления заказа.
	ErrBoosterUnavailable = errors.New("booster unavailable")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при совпадении идентификатора заказа.
	ErrOrderExists = errors.New("order already exists")
)

const connectTimeout = 10 * time.Second

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
	cfg.MaxConns = 10

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
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

var retryDelays = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// errCommitUnknown означает, что COMMIT был отправлен, но ответ сервера не получен.
// Транзакция могла зафиксироваться, поэтому такую ошибку не повторяют.
var errCommitUnknown = errors.New("commit outcome unknown")

func isRetryable(err error) bool {
	if errors.Is(err, errCommitUnknown) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const boosterColumns = `id, name, rank, status, discord_id, created_at, updated_at`

func scanBooster(row pgx.Row) (*model.Booster, error) {
	var (
		b      model.Booster
		status string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Rank, &status, &b.DiscordID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BoosterStatus(status)
	return &b, nil
}

// ListBoosters возвращает весь состав бустеров, упорядоченный по имени.
func (r *PostgresRepository) ListBoosters(ctx context.Context) ([]model.Booster, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+boosterColumns+` FROM boosters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select boosters: %w", err)
	}
	defer rows.Close()

	boosters := make([]model.Booster, 0)
	for rows.Next() {
		b, err := scanBooster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booster: %w", err)
		}
		boosters = append(boosters, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return boosters, nil
}

// GetBoosterByName возвращает бустера по имени.
func (r *PostgresRepository) GetBoosterByName(ctx context.Context, name string) (*model.Booster, error) {
	b, err := scanBooster(r.pool.QueryRow(ctx,
		`SELECT `+boosterColumns+` FROM boosters WHERE name = $1`,
		name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoosterNotFound
		}
		return nil, fmt.Errorf("get booster: %w", err)
	}
	return b, nil
}

// CreateBooster добавляет нового бустера. Существующая запись с тем же id или именем не изменяется.
func (r *PostgresRepository) CreateBooster(ctx context.Context, b model.Booster) (*model.Booster, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM boosters WHERE id = $1 OR name = $2)`,
		b.ID, b.Name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check booster: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrBoosterExists, b.Name)
	}

	created, err := scanBooster(r.pool.QueryRow(ctx,
		`INSERT INTO boosters (id, name, rank, status, discord_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING `+boosterColumns,
		b.ID, b.Name, b.Rank, string(b.Status), b.DiscordID, b.CreatedAt,
	))
	if err != nil {
		// Параллельная вставка, проскочившая между проверкой и INSERT.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrBoosterExists, b.Name)
		}
		return nil, fmt.Errorf("insert booster: %w", err)
	}

	return created, nil
}

// UpdateBoosterStatus выставляет статус бустера по имени.
func (r *PostgresRepository) UpdateBoosterStatus(ctx context.Context, name string, status model.BoosterStatus, at time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE boosters SET status = $2, updated_at = $3 WHERE name = $1`,
		name, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("update booster: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBoosterNotFound
	}
	return nil
}

// PlaceOrder сохраняет заказ и переводит назначенного бустера в статус Busy.
// Строка бустера блокируется на время транзакции, поэтому из двух параллельных
// заказов на одного бустера проходит только один.
func (r *PostgresRepository) PlaceOrder(ctx context.Context, o model.Order) error {
	return r.withRetry(ctx, func() error {
		return r.placeOrder(ctx, o)
	})
}

func (r *PostgresRepository) placeOrder(ctx context.Context, o model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM boosters WHERE name = $1 FOR UPDATE`,
		o.Booster,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBoosterNotFound
		}
		return fmt.Errorf("lock booster for update: %w", err)
	}

	if !model.BoosterStatus(status).IsAvailable() {
		return ErrBoosterUnavailable
	}

	addons := o.Addons
	if addons == nil {
		addons = []string{}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, current_rank, desired_rank, addons, username, discord, priority, invoice_id, booster, total_price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11, $12)`,
		o.ID, o.CurrentRank, o.DesiredRank, addons, o.Username, o.Discord, o.Priority,
		o.InvoiceID, o.Booster, o.TotalPrice.String(), string(o.Status), o.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE boosters SET status = $2, updated_at = $3 WHERE name = $1`,
		o.Booster, string(model.BoosterStatusBusy), o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("mark booster busy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("commit tx: %w", err)
		}
		return fmt.Errorf("commit tx: %w: %w", errCommitUnknown, err)
	}

	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var (
		o      model.Order
		total  string
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, current_rank, desired_rank, addons, username, discord, priority,
		        invoice_id, booster, total_price::text, status, created_at
		 FROM orders
		 WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.CurrentRank, &o.DesiredRank, &o.Addons, &o.Username, &o.Discord, &o.Priority,
		&o.InvoiceID, &o.Booster, &total, &status, &o.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	price, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total price %q: %w", total, err)
	}
	o.TotalPrice = price
	o.Status = model.OrderStatus(status)
	if o.Addons == nil {
		o.Addons = []string{}
	}

	return &o, nil
}
