package model

import (
	"time"

	"github.com/dukerupert/tripcart/internal/grocery"
)

type Item struct {
	ID        string           `json:"id"`
	TripID    string           `json:"trip_id"`
	Name      string           `json:"name"`
	Category  grocery.Category `json:"category"`
	Quantity  int              `json:"quantity"`
	Purchased bool             `json:"purchased"`
	Version   int64            `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
}
