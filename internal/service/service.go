// Package service реализует бизнес-логику сервиса Phantom.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/900f/Phantom/internal/model"
	"github.com/900f/Phantom/internal/pricing"
	"github.com/900f/Phantom/internal/repository"
	"github.com/900f/Phantom/internal/validation"
)

// Ошибки бизнес-логики.
var (
	// ErrMissingField означает, что не заполнено обязательное поле.
	ErrMissingField = errors.New("missing field")
	// ErrBoosterNotFound означает, что в заказе указан несуществующий бустер.
	ErrBoosterNotFound = errors.New("booster not found")
	// ErrBoosterUnavailable означает, что выбранный бустер занят.
	ErrBoosterUnavailable = errors.New("booster unavailable")
	// ErrBoosterExists означает, что бустер с таким id или именем уже есть.
	ErrBoosterExists = errors.New("booster already exists")
	// ErrUnknownBooster означает, что обновляемый бустер не найден.
	ErrUnknownBooster = errors.New("unknown booster")
	// ErrOrderNotFound означает, что заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotificationFailed означает, что вебхук не принял уведомление.
	ErrNotificationFailed = errors.New("notification failed")
)

const notifyTimeout = 10 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	ListBoosters(ctx context.Context) ([]model.Booster, error)
	GetBoosterByName(ctx context.Context, name string) (*model.Booster, error)
	CreateBooster(ctx context.Context, b model.Booster) (*model.Booster, error)
	UpdateBoosterStatus(ctx context.Context, name string, status model.BoosterStatus, at time.Time) error
	PlaceOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// Notifier публикует сведения о новом заказе во внешний мессенджер.
type Notifier interface {
	NotifyOrder(ctx context.Context, o model.Order) error
}

// RosterTrigger запрашивает рассылку состава бустеров клиентам.
type RosterTrigger interface {
	Trigger()
}

// Service содержит бизнес-логику приёма заказов и управления бустерами.
type Service struct {
	repo          Repository
	notifier      Notifier
	roster        RosterTrigger
	logger        *zap.Logger
	discordInvite string
	now           func() time.Time

	// notifyAsync отправляет уведомление после ответа клиенту.
	notifyAsync bool
	pending     sync.WaitGroup
}

// NewService создаёт новый сервис.
func NewService(repo Repository, notifier Notifier, roster RosterTrigger, logger *zap.Logger, discordInvite string) *Service {
	return &Service{
		repo:          repo,
		notifier:      notifier,
		roster:        roster,
		logger:        logger,
		discordInvite: discordInvite,
		now:           time.Now,
		notifyAsync:   true,
	}
}

// Close дожидается отправки уведомлений, запущенных в фоне.
func (s *Service) Close() {
	s.pending.Wait()
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// ListBoosters возвращает текущий состав бустеров.
func (s *Service) ListBoosters(ctx context.Context) ([]model.Booster, error) {
	boosters, err := s.repo.ListBoosters(ctx)
	if err != nil {
		return nil, err
	}
	if boosters == nil {
		boosters = []model.Booster{}
	}
	return boosters, nil
}

// AddBooster регистрирует нового бустера в статусе Available.
func (s *Service) AddBooster(ctx context.Context, nb model.NewBooster) (*model.Booster, error) {
	if validation.MissingBoosterField(nb) != "" {
		return nil, ErrMissingField
	}

	created, err := s.repo.CreateBooster(ctx, model.Booster{
		ID:        nb.ID,
		Name:      nb.Name,
		Rank:      nb.Rank,
		DiscordID: nb.DiscordID,
		Status:    model.BoosterStatusAvailable,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrBoosterExists) {
			return nil, ErrBoosterExists
		}
		return nil, err
	}

	s.logger.Info("booster added", zap.String("booster", created.Name))
	s.triggerRoster()
	return created, nil
}

// UpdateBoosterStatus выставляет статус бустера, например возвращает его в Available.
func (s *Service) UpdateBoosterStatus(ctx context.Context, name string, status model.BoosterStatus) error {
	if validation.IsEmpty(name) || validation.IsEmpty(string(status)) {
		return ErrMissingField
	}

	if err := s.repo.UpdateBoosterStatus(ctx, name, status, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrBoosterNotFound) {
			return ErrUnknownBooster
		}
		return err
	}

	s.logger.Info("booster status updated", zap.String("booster", name), zap.String("status", string(status)))
	s.triggerRoster()
	return nil
}

// SubmitOrder проверяет форму заказа, рассчитывает стоимость, сохраняет заказ
// и занимает выбранного бустера.
func (s *Service) SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.OrderReceipt, error) {
	if field := validation.MissingOrderField(req); field != "" {
		s.logger.Debug("order rejected", zap.String("missing", field))
		return nil, ErrMissingField
	}

	booster, err := s.repo.GetBoosterByName(ctx, req.Booster)
	if err != nil {
		if errors.Is(err, repository.ErrBoosterNotFound) {
			return nil, ErrBoosterNotFound
		}
		return nil, err
	}
	if !booster.Status.IsAvailable() {
		return nil, ErrBoosterUnavailable
	}

	if !pricing.Known(req.CurrentRank, req.DesiredRank) {
		s.logger.Warn("rank combination is not priced",
			zap.String("current_rank", req.CurrentRank),
			zap.String("desired_rank", req.DesiredRank))
	}

	now := s.now().UTC()
	addons := req.Addons
	if addons == nil {
		addons = []string{}
	}

	order := model.Order{
		ID:          newOrderID(now),
		CurrentRank: req.CurrentRank,
		DesiredRank: req.DesiredRank,
		Addons:      addons,
		Username:    req.Username,
		Discord:     req.Discord,
		Priority:    req.Priority,
		InvoiceID:   req.InvoiceID,
		Booster:     booster.Name,
		TotalPrice:  pricing.Price(req.CurrentRank, req.DesiredRank, req.Priority),
		Status:      model.OrderStatusPending,
		Timestamp:   now,
	}

	if err := s.repo.PlaceOrder(ctx, order); err != nil {
		switch {
		case errors.Is(err, repository.ErrBoosterUnavailable):
			// Бустера заняли параллельным заказом между проверкой и блокировкой.
			return nil, ErrBoosterUnavailable
		case errors.Is(err, repository.ErrBoosterNotFound):
			return nil, ErrBoosterNotFound
		}
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order", order.ID),
		zap.String("booster", order.Booster),
		zap.String("total", order.TotalPrice.String()))

	s.triggerRoster()
	s.sendNotification(ctx, order)

	return &model.OrderReceipt{
		OrderID:       order.ID,
		DiscordInvite: s.discordInvite,
		TotalPrice:    order.TotalPrice,
	}, nil
}

// GetOrder возвращает сохранённый заказ.
func (s *Service) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// ResendNotification повторно отправляет уведомление о заказе.
// В отличие от отправки при оформлении, ошибка вебхука возвращается вызывающему.
func (s *Service) ResendNotification(ctx context.Context, id string) error {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return fmt.Errorf("%w: notifier not configured", ErrNotificationFailed)
	}
	if err := s.notifier.NotifyOrder(ctx, *o); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

func (s *Service) sendNotification(ctx context.Context, o model.Order) {
	if s.notifier == nil {
		return
	}

	send := func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyOrder(nctx, o); err != nil {
			s.logger.Error("order notification failed", zap.String("order", o.ID), zap.Error(err))
		}
	}

	if s.notifyAsync {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			send()
		}()
		return
	}
	send()
}

func (s *Service) triggerRoster() {
	if s.roster != nil {
		s.roster.Trigger()
	}
}

func newOrderID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
