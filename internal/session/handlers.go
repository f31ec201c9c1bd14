package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/tripcart/internal/grocery"
	"github.com/dukerupert/tripcart/internal/model"
	"github.com/dukerupert/tripcart/internal/protocol"
	"github.com/dukerupert/tripcart/internal/store"
)

var errBadDate = errors.New("trip date must be YYYY-MM-DD")

func (s *Session) getTrips(ctx context.Context) {
	trips, err := s.scope.ListTrips(ctx)
	if err != nil {
		s.fail(ctx, "get trips", err, "Failed to fetch trips")
		return
	}
	s.out.Send(protocol.NewEvent(protocol.EventTripsList, trips))
}

func (s *Session) createTrip(ctx context.Context, c protocol.CreateTrip) {
	name := strings.TrimSpace(c.TripName)
	if name == "" {
		s.out.Send(protocol.ErrorEvent("Trip name is required"))
		return
	}
	date, err := normalizeDate(c.TripDate, s.now())
	if err != nil {
		s.out.Send(protocol.ErrorEvent("Invalid trip date"))
		return
	}

	trip, err := s.scope.CreateTrip(ctx, name, date)
	if err != nil {
		s.fail(ctx, "create trip", err, "Failed to create trip")
		return
	}
	s.logger.Info("trip created", "trip_id", trip.ID)
	s.out.Send(protocol.NewEvent(protocol.EventTripCreated, trip))
	s.out.Send(protocol.NewEvent(protocol.EventCurrentTrip, trip))
	s.watch(trip.ID)
}

func (s *Session) loadTrip(ctx context.Context, tripID string) {
	trip, err := s.scope.GetTrip(ctx, tripID)
	if err == nil && trip == nil {
		err = fmt.Errorf("load trip %s: %w", tripID, store.ErrNotFound)
	}
	if err != nil {
		s.fail(ctx, "load trip", err, "Failed to load trip")
		return
	}
	items, err := s.scope.ListItems(ctx, trip.ID)
	if err != nil {
		s.fail(ctx, "load trip", err, "Failed to load trip")
		return
	}
	s.out.Send(protocol.NewEvent(protocol.EventCurrentTrip, trip))
	s.out.Send(protocol.NewEvent(protocol.EventTripItems, items))
	s.watch(trip.ID)
}

func (s *Session) addItem(ctx context.Context, c protocol.AddItem) {
	name := strings.TrimSpace(c.ItemName)
	if name == "" {
		s.out.Send(protocol.ErrorEvent("Item name is required"))
		return
	}
	qty := c.Quantity
	if qty < 1 {
		qty = 1
	}

	item, err := s.scope.CreateItem(ctx, c.TripID, name, grocery.Categorize(name), qty)
	if err != nil {
		s.fail(ctx, "add item", err, "Failed to add item")
		return
	}
	s.out.Broadcast(protocol.NewEvent(protocol.EventItemAdded, item), item.TripID, s.scope.UserID())
}

func (s *Session) togglePurchased(ctx context.Context, itemID string) {
	item, err := s.scope.TogglePurchased(ctx, itemID)
	if errors.Is(err, store.ErrConflict) {
		s.logger.Warn("toggle lost a race", "item_id", itemID)
		s.out.Send(protocol.ErrorEvent("Item was changed by someone else"))
		return
	}
	if err != nil {
		s.fail(ctx, "toggle purchased", err, "Failed to update item")
		return
	}
	s.out.Broadcast(protocol.NewEvent(protocol.EventItemUpdated, item), item.TripID, s.scope.UserID())
}

func (s *Session) updateQuantity(ctx context.Context, c protocol.UpdateQuantity) {
	if !c.Valid || c.Quantity < 1 {
		s.out.Send(protocol.ErrorEvent("Quantity must be a positive integer"))
		return
	}
	item, err := s.scope.UpdateQuantity(ctx, c.ItemID, c.Quantity)
	if err != nil {
		s.fail(ctx, "update quantity", err, "Failed to update item")
		return
	}
	s.out.Broadcast(protocol.NewEvent(protocol.EventItemUpdated, item), item.TripID, s.scope.UserID())
}

func (s *Session) deleteItem(ctx context.Context, itemID string) {
	item, err := s.scope.GetItem(ctx, itemID)
	if err == nil && item == nil {
		err = fmt.Errorf("delete item %s: %w", itemID, store.ErrNotFound)
	}
	if err == nil {
		err = s.scope.DeleteItem(ctx, itemID)
	}
	if err != nil {
		s.fail(ctx, "delete item", err, "Failed to delete item")
		return
	}
	s.out.Broadcast(protocol.NewEvent(protocol.EventItemDeleted, item.ID), item.TripID, s.scope.UserID())
}

func (s *Session) deleteTrip(ctx context.Context, tripID string) {
	trip, err := s.scope.GetTrip(ctx, tripID)
	if err == nil && trip == nil {
		err = fmt.Errorf("delete trip %s: %w", tripID, store.ErrNotFound)
	}
	if err == nil {
		err = s.scope.DeleteTrip(ctx, tripID)
	}
	if err != nil {
		s.fail(ctx, "delete trip", err, "Failed to delete trip")
		return
	}
	s.logger.Info("trip deleted", "trip_id", trip.ID)
	s.out.Broadcast(protocol.NewEvent(protocol.EventTripDeleted, trip.ID), trip.ID, s.scope.UserID())
	if s.watching == trip.ID {
		s.watch("")
	}
}

// normalizeDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date. An empty value means today.
func normalizeDate(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC().Format(model.DateLayout), nil
	}
	if t, err := time.Parse(model.DateLayout, raw); err == nil {
		return t.Format(model.DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(model.DateLayout), nil
	}
	return "", errBadDate
}
