package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/tripcart/internal/model"
)

func scanTrip(scanner interface{ Scan(...any) error }) (*model.Trip, error) {
	var t model.Trip
	err := scanner.Scan(&t.ID, &t.UserID, &t.TripName, &t.TripDate, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const tripCols = `id, user_id, trip_name, trip_date, created_at`

// ListTrips returns the user's trips, newest first.
func (sc *Scope) ListTrips(ctx context.Context) ([]model.Trip, error) {
	rows, err := sc.s.db.QueryContext(ctx,
		sc.s.q(`SELECT `+tripCols+` FROM trips WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		sc.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	trips := []model.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// GetTrip returns the trip, or nil if it does not exist or belongs to someone else.
func (sc *Scope) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	row := sc.s.db.QueryRowContext(ctx,
		sc.s.q(`SELECT `+tripCols+` FROM trips WHERE id = ? AND user_id = ?`),
		id, sc.userID,
	)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

// CreateTrip inserts a trip owned by the scope's user. tripDate must already
// be in model.DateLayout.
func (sc *Scope) CreateTrip(ctx context.Context, tripName, tripDate string) (*model.Trip, error) {
	id := sc.s.newID()
	_, err := sc.s.db.ExecContext(ctx,
		sc.s.q(`INSERT INTO trips (id, user_id, trip_name, trip_date, created_at) VALUES (?, ?, ?, ?, ?)`),
		id, sc.userID, tripName, tripDate, sc.s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}
	return sc.GetTrip(ctx, id)
}

// DeleteTrip removes the trip; its items go with it through the foreign key cascade.
func (sc *Scope) DeleteTrip(ctx context.Context, id string) error {
	result, err := sc.s.db.ExecContext(ctx,
		sc.s.q(`DELETE FROM trips WHERE id = ? AND user_id = ?`),
		id, sc.userID,
	)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
