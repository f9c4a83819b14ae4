package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// BoostersChannel задаёт канал NOTIFY, в который триггер на таблице boosters
// публикует имя изменённого бустера.
const BoostersChannel = "boosters_changed"

const (
	feedPingInterval = 15 * time.Second
	feedMinBackoff   = 1 * time.Second
	feedMaxBackoff   = 30 * time.Second
)

// ChangeFeed получает уведомления об изменениях в таблице boosters через LISTEN/NOTIFY.
type ChangeFeed struct {
	repo    *PostgresRepository
	logger  *zap.Logger
	channel string
}

// NewChangeFeed создаёт подписку на изменения состава бустеров.
func NewChangeFeed(repo *PostgresRepository, logger *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		repo:    repo,
		logger:  logger,
		channel: BoostersChannel,
	}
}

// Listen блокируется до отмены контекста и вызывает onChange на каждое уведомление.
// При потере соединения подписка восстанавливается с экспоненциальной задержкой,
// а после каждого переподключения onChange вызывается один раз, чтобы не потерять
// изменения, пришедшие во время разрыва.
func (f *ChangeFeed) Listen(ctx context.Context, onChange func()) error {
	backoff := feedMinBackoff

	for {
		started := time.Now()
		err := f.listen(ctx, onChange)
		if ctx.Err() != nil {
			f.logger.Info("booster change feed stopped")
			return nil
		}

		if time.Since(started) > feedMaxBackoff {
			backoff = feedMinBackoff
		}

		f.logger.Warn("booster change feed interrupted", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > feedMaxBackoff {
			backoff = feedMaxBackoff
		}
	}
}

func (f *ChangeFeed) listen(ctx context.Context, onChange func()) error {
	pooled, err := f.repo.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	// Соединение с активным LISTEN не возвращается в пул.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}

	f.logger.Info("listening for booster changes", zap.String("channel", f.channel))
	onChange()

	for {
		waitCtx, cancel := context.WithTimeout(ctx, feedPingInterval)
		n, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Тишина в канале: проверяем, что соединение живо.
			if !conn.IsClosed() && (errors.Is(err, context.DeadlineExceeded) || isTimeout(err)) {
				if pingErr := conn.Ping(ctx); pingErr != nil {
					return fmt.Errorf("ping: %w", pingErr)
				}
				continue
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		f.logger.Debug("booster change detected", zap.String("booster", n.Payload))
		onChange()
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
