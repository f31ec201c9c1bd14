package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/tripcart/internal/grocery"
	"github.com/dukerupert/tripcart/internal/model"
)

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var item model.Item
	var category string

	err := scanner.Scan(
		&item.ID, &item.TripID, &item.Name, &category, &item.Quantity,
		&item.Purchased, &item.Version, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Category = grocery.Category(category)
	return &item, nil
}

const itemCols = `id, trip_id, name, category, quantity, purchased, version, created_at`

// ownedTrips restricts item queries to trips of the scope's user.
const ownedTrips = `trip_id IN (SELECT id FROM trips WHERE user_id = ?)`

// GetItem returns the item, or nil if it does not exist or is on someone else's trip.
func (sc *Scope) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := sc.s.db.QueryRowContext(ctx,
		sc.s.q(`SELECT `+itemCols+` FROM shopping_items WHERE id = ? AND `+ownedTrips),
		id, sc.userID,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns the trip's items in insertion order.
func (sc *Scope) ListItems(ctx context.Context, tripID string) ([]model.Item, error) {
	rows, err := sc.s.db.QueryContext(ctx,
		sc.s.q(`SELECT `+itemCols+` FROM shopping_items WHERE trip_id = ? AND `+ownedTrips+` ORDER BY created_at ASC, id ASC`),
		tripID, sc.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CreateItem inserts an unpurchased item on a trip the user owns.
func (sc *Scope) CreateItem(ctx context.Context, tripID, name string, category grocery.Category, quantity int) (*model.Item, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("insert item: quantity %d below 1", quantity)
	}

	trip, err := sc.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrNotFound
	}

	id := sc.s.newID()
	_, err = sc.s.db.ExecContext(ctx,
		sc.s.q(`INSERT INTO shopping_items (id, trip_id, name, category, quantity, purchased, version, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`),
		id, trip.ID, name, string(category), quantity, false, sc.s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return sc.GetItem(ctx, id)
}

// TogglePurchased reads the item and writes back the negated purchased flag.
// Without compare-and-swap, concurrent toggles race and the last write wins.
func (sc *Scope) TogglePurchased(ctx context.Context, id string) (*model.Item, error) {
	item, err := sc.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return sc.setPurchased(ctx, item, !item.Purchased)
}

// setPurchased writes purchased for an item previously read by the caller.
// With compare-and-swap on, the write only applies if the item is still at
// the version that was read.
func (sc *Scope) setPurchased(ctx context.Context, read *model.Item, purchased bool) (*model.Item, error) {
	query := `UPDATE shopping_items SET purchased = ?, version = version + 1 WHERE id = ?`
	args := []any{purchased, read.ID}
	if sc.s.toggleCAS {
		query += ` AND version = ?`
		args = append(args, read.Version)
	}

	result, err := sc.s.db.ExecContext(ctx, sc.s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("toggle purchased: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if sc.s.toggleCAS {
			return nil, ErrConflict
		}
		return nil, ErrNotFound
	}
	return sc.GetItem(ctx, read.ID)
}

// UpdateQuantity replaces the item's quantity.
func (sc *Scope) UpdateQuantity(ctx context.Context, id string, quantity int) (*model.Item, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("update quantity: quantity %d below 1", quantity)
	}

	result, err := sc.s.db.ExecContext(ctx,
		sc.s.q(`UPDATE shopping_items SET quantity = ?, version = version + 1 WHERE id = ? AND `+ownedTrips),
		quantity, id, sc.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return sc.GetItem(ctx, id)
}

func (sc *Scope) DeleteItem(ctx context.Context, id string) error {
	result, err := sc.s.db.ExecContext(ctx,
		sc.s.q(`DELETE FROM shopping_items WHERE id = ? AND `+ownedTrips),
		id, sc.userID,
	)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
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
