// Package pricing содержит таблицу цен на буст ранга.
package pricing

import "github.com/shopspring/decimal"

// PrioritySurcharge задаёт фиксированную надбавку за приоритетное выполнение.
var PrioritySurcharge = decimal.NewFromInt(5)

type combo struct {
	current string
	desired string
}

var baseprices = map[combo]decimal.Decimal{
	{"Bronze", "Champion"}:   decimal.NewFromInt(20),
	{"Silver", "Champion"}:   decimal.NewFromInt(20),
	{"Gold", "Champion"}:     decimal.NewFromInt(20),
	{"Platinum", "Champion"}: decimal.NewFromInt(15),
	{"Emerald", "Champion"}:  decimal.NewFromInt(10),
	{"Diamond", "Champion"}:  decimal.NewFromInt(5),
}

// Known сообщает, есть ли пара рангов в таблице.
func Known(currentRank, desiredRank string) bool {
	_, ok := baseprices[combo{currentRank, desiredRank}]
	return ok
}

// Price возвращает итоговую стоимость заказа.
//
// Для пар рангов, которых нет в таблице, базовая цена равна нулю.
func Price(currentRank, desiredRank string, priority bool) decimal.Decimal {
	total := baseprices[combo{currentRank, desiredRank}]
	if priority {
		total = total.Add(PrioritySurcharge)
	}
	return total
}
