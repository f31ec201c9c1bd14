// Package client is the consumer side of the sync socket: a Conn that talks
// to the server and a View that folds the event stream into list state.
package client

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dukerupert/tripcart/internal/grocery"
	"github.com/dukerupert/tripcart/internal/model"
	"github.com/dukerupert/tripcart/internal/protocol"
)

// View is the client's copy of the trips and the open trip's items.
// Applying the same event twice leaves it unchanged.
type View struct {
	UserID      string
	Email       string
	AllTrips    []model.Trip
	CurrentTrip *model.Trip
	Items       []model.Item
	LastError   string
}

// Group is the items of one category.
type Group struct {
	Category grocery.Category
	Items    []model.Item
}

// Apply folds one server event into the view. Unknown events are ignored.
func (v *View) Apply(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventAuthenticated:
		var res protocol.AuthResult
		if err := decode(env, &res); err != nil {
			return err
		}
		v.UserID, v.Email = res.UserID, res.Email
	case protocol.EventTripsList:
		var trips []model.Trip
		if err := decode(env, &trips); err != nil {
			return err
		}
		v.AllTrips = trips
	case protocol.EventTripCreated:
		var trip model.Trip
		if err := decode(env, &trip); err != nil {
			return err
		}
		if v.tripIndex(trip.ID) < 0 {
			v.AllTrips = append([]model.Trip{trip}, v.AllTrips...)
		}
	case protocol.EventCurrentTrip:
		var trip model.Trip
		if err := decode(env, &trip); err != nil {
			return err
		}
		v.CurrentTrip = &trip
	case protocol.EventTripItems:
		var items []model.Item
		if err := decode(env, &items); err != nil {
			return err
		}
		v.Items = items
	case protocol.EventItemAdded:
		var item model.Item
		if err := decode(env, &item); err != nil {
			return err
		}
		if v.CurrentTrip != nil && item.TripID == v.CurrentTrip.ID && v.itemIndex(item.ID) < 0 {
			v.Items = append(v.Items, item)
		}
	case protocol.EventItemUpdated:
		var item model.Item
		if err := decode(env, &item); err != nil {
			return err
		}
		if i := v.itemIndex(item.ID); i >= 0 {
			v.Items[i] = item
		}
	case protocol.EventItemDeleted:
		var id string
		if err := decode(env, &id); err != nil {
			return err
		}
		v.Items = slices.DeleteFunc(v.Items, func(it model.Item) bool { return it.ID == id })
	case protocol.EventTripDeleted:
		var id string
		if err := decode(env, &id); err != nil {
			return err
		}
		v.AllTrips = slices.DeleteFunc(v.AllTrips, func(t model.Trip) bool { return t.ID == id })
		if v.CurrentTrip != nil && v.CurrentTrip.ID == id {
			v.CurrentTrip = nil
			v.Items = nil
		}
	case protocol.EventError, protocol.EventAuthError:
		var msg string
		if err := decode(env, &msg); err != nil {
			return err
		}
		v.LastError = msg
	}
	return nil
}

// Groups returns the open trip's items by category in display order. Empty
// categories are left out and unknown categories count as others.
func (v *View) Groups() []Group {
	byCat := make(map[grocery.Category][]model.Item)
	for _, it := range v.Items {
		c := grocery.Parse(string(it.Category))
		byCat[c] = append(byCat[c], it)
	}
	var groups []Group
	for _, c := range grocery.Categories() {
		if items := byCat[c]; len(items) > 0 {
			groups = append(groups, Group{Category: c, Items: items})
		}
	}
	return groups
}

// Counts returns how many items the open trip has and how many are purchased.
func (v *View) Counts() (total, purchased int) {
	for _, it := range v.Items {
		if it.Purchased {
			purchased++
		}
	}
	return len(v.Items), purchased
}

func (v *View) tripIndex(id string) int {
	return slices.IndexFunc(v.AllTrips, func(t model.Trip) bool { return t.ID == id })
}

func (v *View) itemIndex(id string) int {
	return slices.IndexFunc(v.Items, func(it model.Item) bool { return it.ID == id })
}

func decode(env protocol.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return nil
}
