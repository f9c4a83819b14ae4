// Package model содержит доменные сущности сервиса Phantom.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Цены отдаются клиентам числом, а не строкой.
	decimal.MarshalJSONWithoutQuotes = true
}

// BoosterStatus описывает доступность бустера.
//
// В хранилище могут встречаться произвольные значения, выставленные оператором;
// они сохраняются как есть и считаются недоступными.
type BoosterStatus string

const (
	BoosterStatusAvailable BoosterStatus = "Available"
	BoosterStatusBusy      BoosterStatus = "Busy"
)

// IsAvailable сообщает, можно ли назначить бустеру новый заказ.
func (s BoosterStatus) IsAvailable() bool {
	return s == BoosterStatusAvailable
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "Pending"
)

// Booster представляет исполнителя, которому назначаются заказы.
type Booster struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Rank      string        `json:"rank"`
	Status    BoosterStatus `json:"status"`
	DiscordID string        `json:"discord_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Order описывает заказ на буст ранга. После создания заказ не изменяется.
type Order struct {
	ID          string          `json:"id"`
	CurrentRank string          `json:"currentRank"`
	DesiredRank string          `json:"desiredRank"`
	Addons      []string        `json:"addons"`
	Username    string          `json:"username"`
	Discord     string          `json:"discord"`
	Priority    bool            `json:"priority"`
	InvoiceID   string          `json:"invoiceId"`
	Booster     string          `json:"booster"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      OrderStatus     `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderRequest содержит данные формы заказа в том виде, в котором их прислал клиент.
type OrderRequest struct {
	CurrentRank string
	DesiredRank string
	Addons      []string
	Username    string
	Discord     string
	Priority    bool
	InvoiceID   string
	Booster     string
}

// OrderReceipt возвращается клиенту после успешного оформления заказа.
type OrderReceipt struct {
	OrderID       string
	DiscordInvite string
	TotalPrice    decimal.Decimal
}

// NewBooster содержит данные для регистрации нового бустера.
type NewBooster struct {
	ID        string
	Name      string
	Rank      string
	DiscordID string
}
