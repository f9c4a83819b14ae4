// Package validation содержит функции валидации входных данных.
package validation

import "github.com/900f/Phantom/internal/model"

// MissingOrderField возвращает имя первого незаполненного обязательного поля формы заказа
// или пустую строку, если все поля на месте.
func MissingOrderField(req model.OrderRequest) string {
	fields := []struct {
		name  string
		value string
	}{
		{"currentRank", req.CurrentRank},
		{"desiredRank", req.DesiredRank},
		{"username", req.Username},
		{"discord", req.Discord},
		{"invoiceId", req.InvoiceID},
		{"booster", req.Booster},
	}

	for _, f := range fields {
		if IsEmpty(f.value) {
			return f.name
		}
	}
	return ""
}

// MissingBoosterField возвращает имя первого незаполненного поля нового бустера.
func MissingBoosterField(b model.NewBooster) string {
	if IsEmpty(b.ID) {
		return "id"
	}
	if IsEmpty(b.Name) {
		return "name"
	}
	return ""
}

// IsEmpty сообщает, что поле не передано или передано пустой строкой.
// Строка из пробелов считается заполненной.
func IsEmpty(s string) bool {
	return s == ""
}
