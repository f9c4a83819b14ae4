// Package handler содержит HTTP-обработчики API сервиса Phantom.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/900f/Phantom/internal/middleware"
	"github.com/900f/Phantom/internal/model"
	"github.com/900f/Phantom/internal/service"
)

const (
	healthTimeout = 2 * time.Second
	maxBodyBytes  = 64 << 10
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	ListBoosters(ctx context.Context) ([]model.Booster, error)
	AddBooster(ctx context.Context, nb model.NewBooster) (*model.Booster, error)
	UpdateBoosterStatus(ctx context.Context, name string, status model.BoosterStatus) error
	SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.OrderReceipt, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ResendNotification(ctx context.Context, id string) error
}

// Options задаёт параметры маршрутизатора.
type Options struct {
	// Realtime обслуживает websocket-подключения на /ws.
	Realtime http.Handler
	// AdminToken защищает изменение состава бустеров. Пустая строка отключает проверку.
	AdminToken string
	// SubmitRateLimit ограничивает число заказов в секунду. Ноль отключает ограничение.
	SubmitRateLimit float64
}

// Handler реализует HTTP-обработчики API сервиса Phantom.
type Handler struct {
	service   Service
	logger    *zap.Logger
	realtime  http.Handler
	adminAuth *middleware.AdminAuth
	rateLimit float64
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, opts Options) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		realtime:  opts.Realtime,
		adminAuth: middleware.NewAdminAuth(opts.AdminToken),
		rateLimit: opts.SubmitRateLimit,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type addBoosterRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rank      string `json:"rank"`
	DiscordID string `json:"discord_id"`
}

type addBoosterResponse struct {
	Success bool           `json:"success"`
	Booster *model.Booster `json:"booster"`
}

type updateBoosterRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type submitRequest struct {
	CurrentRank string   `json:"currentRank"`
	DesiredRank string   `json:"desiredRank"`
	Addons      []string `json:"addons"`
	Username    string   `json:"username"`
	Discord     string   `json:"discord"`
	Priority    bool     `json:"priority"`
	InvoiceID   string   `json:"invoiceId"`
	Booster     string   `json:"booster"`
}

type submitResponse struct {
	Success       bool            `json:"success"`
	OrderID       string          `json:"orderId"`
	DiscordInvite string          `json:"discordInvite"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// GetBoosters возвращает весь состав бустеров.
func (h *Handler) GetBoosters(w http.ResponseWriter, r *http.Request) {
	boosters, err := h.service.ListBoosters(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch boosters")
		return
	}
	writeJSON(w, http.StatusOK, boosters)
}

// AddBooster регистрирует нового бустера.
func (h *Handler) AddBooster(w http.ResponseWriter, r *http.Request) {
	var req addBoosterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booster, err := h.service.AddBooster(r.Context(), model.NewBooster{
		ID:        req.ID,
		Name:      req.Name,
		Rank:      req.Rank,
		DiscordID: req.DiscordID,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to add booster")
		return
	}

	writeJSON(w, http.StatusOK, addBoosterResponse{Success: true, Booster: booster})
}

// UpdateBooster меняет статус бустера.
func (h *Handler) UpdateBooster(w http.ResponseWriter, r *http.Request) {
	var req updateBoosterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateBoosterStatus(r.Context(), req.Name, model.BoosterStatus(req.Status)); err != nil {
		h.writeServiceError(w, err, "Failed to update booster")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Submit принимает заказ из формы.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := h.service.SubmitOrder(r.Context(), model.OrderRequest{
		CurrentRank: req.CurrentRank,
		DesiredRank: req.DesiredRank,
		Addons:      req.Addons,
		Username:    req.Username,
		Discord:     req.Discord,
		Priority:    req.Priority,
		InvoiceID:   req.InvoiceID,
		Booster:     req.Booster,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to process order")
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:       true,
		OrderID:       receipt.OrderID,
		DiscordInvite: receipt.DiscordInvite,
		TotalPrice:    receipt.TotalPrice,
	})
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ResendOrderNotification повторно отправляет уведомление о заказе в Discord.
func (h *Handler) ResendOrderNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResendNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "Failed to send webhook")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Health сообщает, доступно ли хранилище.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// writeServiceError переводит ошибку сервиса в код ответа.
// Неизвестные ошибки пишутся в журнал и отдаются клиенту как fallback без подробностей.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrMissingField):
		writeError(w, http.StatusBadRequest, "All fields are required")
	case errors.Is(err, service.ErrBoosterNotFound):
		writeError(w, http.StatusBadRequest, "Selected booster does not exist")
	case errors.Is(err, service.ErrBoosterUnavailable):
		writeError(w, http.StatusBadRequest, "Selected booster is not available")
	case errors.Is(err, service.ErrBoosterExists):
		writeError(w, http.StatusBadRequest, "Booster already exists")
	case errors.Is(err, service.ErrUnknownBooster):
		writeError(w, http.StatusNotFound, "Booster not found")
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, service.ErrNotificationFailed):
		h.logger.Error("webhook resend failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to send webhook")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
