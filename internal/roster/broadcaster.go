package roster

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/900f/Phantom/internal/model"
)

// EventBoostersUpdate задаёт имя события, с которым клиентам отправляется состав бустеров.
const EventBoostersUpdate = "boosters_update"

const (
	fetchTimeout = 5 * time.Second
	joinQueue    = 64
)

// Lister читает текущий состав бустеров из хранилища.
type Lister interface {
	ListBoosters(ctx context.Context) ([]model.Booster, error)
}

// Feed сообщает об изменениях состава. Listen блокируется до отмены контекста.
type Feed interface {
	Listen(ctx context.Context, onChange func()) error
}

// Message описывает конверт, в котором состав уходит клиентам.
type Message struct {
	Event string          `json:"event"`
	Data  []model.Booster `json:"data"`
}

// Broadcaster перечитывает состав целиком на каждое изменение и рассылает его всем клиентам.
// Изменения, пришедшие во время рассылки, схлопываются в одну следующую рассылку.
type Broadcaster struct {
	hub    *Hub
	lister Lister
	logger *zap.Logger

	refresh chan struct{}
	joins   chan *client
}

// NewBroadcaster связывает реестр клиентов с хранилищем.
func NewBroadcaster(hub *Hub, lister Lister, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{
		hub:     hub,
		lister:  lister,
		logger:  logger,
		refresh: make(chan struct{}, 1),
		joins:   make(chan *client, joinQueue),
	}
	hub.onJoin = b.join
	return b
}

// Trigger запрашивает рассылку актуального состава. Не блокируется.
func (b *Broadcaster) Trigger() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

func (b *Broadcaster) join(c *client) {
	select {
	case b.joins <- c:
	default:
		// Очередь приветствий переполнена: новый клиент получит общий снимок.
		b.Trigger()
	}
}

// Run обрабатывает запросы на рассылку до отмены контекста.
// Все чтения и рассылки выполняются в одной горутине, поэтому клиенты
// не получают снимки в обратном порядке.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("roster broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("roster broadcaster stopped")
			return nil
		case c := <-b.joins:
			b.welcome(ctx, c)
		case <-b.refresh:
			b.broadcast(ctx)
		}
	}
}

// Snapshot возвращает текущий состав или пустой список, если хранилище недоступно.
func (b *Broadcaster) Snapshot(ctx context.Context) []model.Booster {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	boosters, err := b.lister.ListBoosters(ctx)
	if err != nil {
		b.logger.Error("fetch boosters for client", zap.Error(err))
		return []model.Booster{}
	}
	if boosters == nil {
		boosters = []model.Booster{}
	}
	return boosters
}

func (b *Broadcaster) welcome(ctx context.Context, c *client) {
	msg, err := encode(b.Snapshot(ctx))
	if err != nil {
		b.logger.Error("encode roster", zap.Error(err))
		return
	}
	if !c.enqueue(msg) {
		b.logger.Debug("client left before first snapshot", zap.String("client", c.id))
	}
}

func (b *Broadcaster) broadcast(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	boosters, err := b.lister.ListBoosters(fetchCtx)
	cancel()
	if err != nil {
		b.logger.Error("fetch boosters after change", zap.Error(err))
		return
	}

	msg, err := encode(boosters)
	if err != nil {
		b.logger.Error("encode roster", zap.Error(err))
		return
	}

	n := b.hub.Broadcast(msg)
	b.logger.Debug("roster broadcast", zap.Int("boosters", len(boosters)), zap.Int("clients", n))
}

func encode(boosters []model.Booster) ([]byte, error) {
	if boosters == nil {
		boosters = []model.Booster{}
	}
	return json.Marshal(Message{Event: EventBoostersUpdate, Data: boosters})
}

// PollFeed служит запасным источником изменений и тикает с заданным интервалом.
type PollFeed struct {
	Interval time.Duration
}

// Listen вызывает onChange раз в Interval до отмены контекста.
func (p PollFeed) Listen(ctx context.Context, onChange func()) error {
	if p.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			onChange()
		}
	}
}
