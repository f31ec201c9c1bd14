package model

import "time"

// DateLayout is the wire and storage format of Trip.TripDate.
const DateLayout = "2006-01-02"

type Trip struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TripName  string    `json:"trip_name"`
	TripDate  string    `json:"trip_date"`
	CreatedAt time.Time `json:"created_at"`
}
