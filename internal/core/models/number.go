package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber генерирует номер вида PREFIX-YEAR-HEX8.
// Случайный hex вместо последовательного счётчика: параллельное создание
// заказов не требует общего счётчика, коллизию ловит уникальный индекс.
func NewOrderNumber(prefix string, now time.Time) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), strings.ToUpper(hex))
}

// NewRequestNumber генерирует номер заявки по той же схеме.
func NewRequestNumber(now time.Time) string {
	return NewOrderNumber("REQ", now)
}
