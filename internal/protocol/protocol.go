// Package protocol defines the JSON frames exchanged over the sync socket.
//
// Every frame is an envelope {"event": name, "data": payload}. Inbound frames
// decode into one of the Command variants; outbound frames are built with
// NewEvent.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Inbound event names.
const (
	EventAuthenticate    = "authenticate"
	EventGetTrips        = "getTrips"
	EventCreateTrip      = "createTrip"
	EventLoadTrip        = "loadTrip"
	EventAddItem         = "addItem"
	EventTogglePurchased = "togglePurchased"
	EventUpdateQuantity  = "updateQuantity"
	EventDeleteItem      = "deleteItem"
	EventDeleteTrip      = "deleteTrip"
)

// Outbound event names.
const (
	EventAuthenticated = "authenticated"
	EventAuthError     = "authError"
	EventTripsList     = "tripsList"
	EventTripCreated   = "tripCreated"
	EventCurrentTrip   = "currentTrip"
	EventTripItems     = "tripItems"
	EventItemAdded     = "itemAdded"
	EventItemUpdated   = "itemUpdated"
	EventItemDeleted   = "itemDeleted"
	EventTripDeleted   = "tripDeleted"
	EventError         = "error"
)

var (
	// ErrUnknownEvent is returned by Decode for an event name with no command.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrBadPayload is returned by Decode when the payload has the wrong shape.
	ErrBadPayload = errors.New("bad payload")
)

// Envelope is the raw shape of every frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// NewEvent creates an outbound Event.
func NewEvent(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// ErrorEvent creates an "error" event carrying a user-facing message.
func ErrorEvent(message string) Event {
	return Event{Name: EventError, Data: message}
}

// Encode marshals the event into a text frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// AuthResult is the payload of "authenticated".
type AuthResult struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Command is a decoded inbound request. The set of implementations is closed.
type Command interface {
	EventName() string
	isCommand()
}

type Authenticate struct{ Token string }

type GetTrips struct{}

type CreateTrip struct {
	TripName string `json:"tripName"`
	TripDate string `json:"tripDate"`
}

type LoadTrip struct{ TripID string }

// AddItem carries the quantity as sent; Quantity is already defaulted to 1
// when it was absent, unparsable or not positive.
type AddItem struct {
	TripID   string
	ItemName string
	Quantity int
}

type TogglePurchased struct{ ItemID string }

// UpdateQuantity carries the quantity as sent. Valid is false when the value
// was not a positive integer.
type UpdateQuantity struct {
	ItemID   string
	Quantity int
	Valid    bool
}

type DeleteItem struct{ ItemID string }

type DeleteTrip struct{ TripID string }

func (Authenticate) EventName() string    { return EventAuthenticate }
func (GetTrips) EventName() string        { return EventGetTrips }
func (CreateTrip) EventName() string      { return EventCreateTrip }
func (LoadTrip) EventName() string        { return EventLoadTrip }
func (AddItem) EventName() string         { return EventAddItem }
func (TogglePurchased) EventName() string { return EventTogglePurchased }
func (UpdateQuantity) EventName() string  { return EventUpdateQuantity }
func (DeleteItem) EventName() string      { return EventDeleteItem }
func (DeleteTrip) EventName() string      { return EventDeleteTrip }

func (Authenticate) isCommand()    {}
func (GetTrips) isCommand()        {}
func (CreateTrip) isCommand()      {}
func (LoadTrip) isCommand()        {}
func (AddItem) isCommand()         {}
func (TogglePurchased) isCommand() {}
func (UpdateQuantity) isCommand()  {}
func (DeleteItem) isCommand()      {}
func (DeleteTrip) isCommand()      {}

// Decode parses a text frame into a Command.
func Decode(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch env.Event {
	case EventAuthenticate:
		// A missing or malformed token is an authentication failure, not a
		// bad frame, so it decodes to an empty token.
		var token string
		if err := json.Unmarshal(env.Data, &token); err != nil {
			token = ""
		}
		return Authenticate{Token: strings.TrimSpace(token)}, nil
	case EventGetTrips:
		return GetTrips{}, nil
	case EventCreateTrip:
		var c CreateTrip
		if err := decodeObject(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case EventLoadTrip:
		id, err := decodeID(env.Data)
		if err != nil {
			return nil, err
		}
		return LoadTrip{TripID: id}, nil
	case EventAddItem:
		var raw struct {
			TripID   json.RawMessage `json:"tripId"`
			ItemName string          `json:"itemName"`
			Quantity json.RawMessage `json:"quantity"`
		}
		if err := decodeObject(env.Data, &raw); err != nil {
			return nil, err
		}
		tripID, err := decodeID(raw.TripID)
		if err != nil {
			return nil, err
		}
		qty, _, ok := parseQuantity(raw.Quantity)
		if !ok {
			qty = 1
		}
		return AddItem{TripID: tripID, ItemName: raw.ItemName, Quantity: qty}, nil
	case EventTogglePurchased:
		id, err := decodeID(env.Data)
		if err != nil {
			return nil, err
		}
		return TogglePurchased{ItemID: id}, nil
	case EventUpdateQuantity:
		var raw struct {
			ItemID   json.RawMessage `json:"itemId"`
			Quantity json.RawMessage `json:"quantity"`
		}
		if err := decodeObject(env.Data, &raw); err != nil {
			return nil, err
		}
		itemID, err := decodeID(raw.ItemID)
		if err != nil {
			return nil, err
		}
		qty, whole, ok := parseQuantity(raw.Quantity)
		return UpdateQuantity{ItemID: itemID, Quantity: qty, Valid: ok && whole}, nil
	case EventDeleteItem:
		id, err := decodeID(env.Data)
		if err != nil {
			return nil, err
		}
		return DeleteItem{ItemID: id}, nil
	case EventDeleteTrip:
		id, err := decodeID(env.Data)
		if err != nil {
			return nil, err
		}
		return DeleteTrip{TripID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// EncodeCommand builds the inbound frame for cmd.
func EncodeCommand(cmd Command) ([]byte, error) {
	var data any
	switch c := cmd.(type) {
	case Authenticate:
		data = c.Token
	case GetTrips:
	case CreateTrip:
		data = c
	case LoadTrip:
		data = c.TripID
	case AddItem:
		data = map[string]any{"tripId": c.TripID, "itemName": c.ItemName, "quantity": c.Quantity}
	case TogglePurchased:
		data = c.ItemID
	case UpdateQuantity:
		data = map[string]any{"itemId": c.ItemID, "quantity": c.Quantity}
	case DeleteItem:
		data = c.ItemID
	case DeleteTrip:
		data = c.TripID
	}
	return json.Marshal(Event{Name: cmd.EventName(), Data: data})
}

func decodeObject(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing payload", ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// decodeID accepts a JSON string or number and returns it as text.
func decodeID(data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", fmt.Errorf("%w: missing id", ErrBadPayload)
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return "", fmt.Errorf("%w: empty id", ErrBadPayload)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: id must be a string", ErrBadPayload)
}

// parseQuantity accepts a JSON number or a numeric string. Fractions are
// truncated and whole reports whether the value had none. ok is false when
// the value is absent, unparsable or below 1 after truncation.
func parseQuantity(data json.RawMessage) (n int, whole, ok bool) {
	if len(data) == 0 || string(data) == "null" {
		return 0, false, false
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, false
	}
	n = int(f)
	if n < 1 {
		return 0, false, false
	}
	return n, f == math.Trunc(f), true
}
