package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/tripcart/internal/auth"
	"github.com/dukerupert/tripcart/internal/database"
	"github.com/dukerupert/tripcart/internal/grocery"
	"github.com/dukerupert/tripcart/internal/model"
	"github.com/dukerupert/tripcart/internal/protocol"
	"github.com/dukerupert/tripcart/internal/store"
)

type emitted struct {
	ev        protocol.Event
	broadcast bool
	tripID    string
	ownerID   string
}

// recorder is an Emitter that keeps everything it was asked to deliver.
type recorder struct {
	out     []emitted
	watched string
	user    string
}

func (r *recorder) Send(ev protocol.Event) {
	r.out = append(r.out, emitted{ev: ev})
}

func (r *recorder) Broadcast(ev protocol.Event, tripID, ownerID string) {
	r.out = append(r.out, emitted{ev: ev, broadcast: true, tripID: tripID, ownerID: ownerID})
}

func (r *recorder) Watch(tripID string)   { r.watched = tripID }
func (r *recorder) SetUser(userID string) { r.user = userID }

func (r *recorder) take() []emitted {
	out := r.out
	r.out = nil
	return out
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

var testVerifier = auth.VerifierFunc(func(_ context.Context, token string) (auth.Identity, error) {
	switch token {
	case "alice-token":
		return auth.Identity{UserID: "alice", Email: "alice@example.com"}, nil
	case "bob-token":
		return auth.Identity{UserID: "bob", Email: "bob@example.com"}, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
})

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	n := 0
	return store.New(db, store.SQLite, store.WithClock(func() time.Time {
		n++
		return fixedNow.Add(time.Duration(n) * time.Millisecond)
	}))
}

func newSession(t *testing.T, st *store.Store) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := New("conn-1", rec, Deps{
		Store:    st,
		Verifier: testVerifier,
		Logger:   slog.Default(),
		Now:      func() time.Time { return fixedNow },
	})
	return s, rec
}

func login(t *testing.T, s *Session, rec *recorder, token string) {
	t.Helper()
	s.Handle(context.Background(), protocol.Authenticate{Token: token})
	out := rec.take()
	if len(out) != 1 || out[0].ev.Name != protocol.EventAuthenticated {
		t.Fatalf("login %s: unexpected events %+v", token, out)
	}
}

func expectOne(t *testing.T, rec *recorder, name string) emitted {
	t.Helper()
	out := rec.take()
	if len(out) != 1 {
		t.Fatalf("expected one %s event, got %d: %+v", name, len(out), out)
	}
	if out[0].ev.Name != name {
		t.Fatalf("expected %s, got %s (%v)", name, out[0].ev.Name, out[0].ev.Data)
	}
	return out[0]
}

func expectError(t *testing.T, rec *recorder, message string) {
	t.Helper()
	e := expectOne(t, rec, protocol.EventError)
	if e.broadcast {
		t.Error("errors must be unicast")
	}
	if e.ev.Data != message {
		t.Errorf("error message = %q, want %q", e.ev.Data, message)
	}
}

func TestAuthenticate(t *testing.T) {
	s, rec := newSession(t, setupStore(t))

	s.Handle(context.Background(), protocol.Authenticate{Token: "alice-token"})

	e := expectOne(t, rec, protocol.EventAuthenticated)
	got, ok := e.ev.Data.(protocol.AuthResult)
	if !ok {
		t.Fatalf("unexpected payload %T", e.ev.Data)
	}
	if got.UserID != "alice" || got.Email != "alice@example.com" {
		t.Errorf("auth result = %+v", got)
	}
	if s.State() != Authenticated {
		t.Errorf("state = %v, want authenticated", s.State())
	}
	if rec.user != "alice" {
		t.Errorf("emitter user = %q, want alice", rec.user)
	}
}

func TestAuthenticateFailure(t *testing.T) {
	s, rec := newSession(t, setupStore(t))

	s.Handle(context.Background(), protocol.Authenticate{Token: "forged"})

	e := expectOne(t, rec, protocol.EventAuthError)
	if e.ev.Data != "Authentication failed" {
		t.Errorf("authError = %v", e.ev.Data)
	}
	if s.State() != Unauthenticated {
		t.Errorf("state = %v, want unauthenticated", s.State())
	}
	if rec.user != "" {
		t.Error("user must not be bound on failure")
	}

	// A later valid token still works.
	login(t, s, rec, "bob-token")
}

func TestAuthenticateTwice(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")

	s.Handle(context.Background(), protocol.Authenticate{Token: "bob-token"})

	e := expectOne(t, rec, protocol.EventAuthError)
	if e.ev.Data != "Already authenticated" {
		t.Errorf("authError = %v", e.ev.Data)
	}
	if s.Identity().UserID != "alice" {
		t.Errorf("identity changed to %q", s.Identity().UserID)
	}
}

func TestAuthenticateThrottled(t *testing.T) {
	calls := 0
	v := auth.VerifierFunc(func(context.Context, string) (auth.Identity, error) {
		calls++
		return auth.Identity{}, auth.ErrInvalidToken
	})
	rec := &recorder{}
	s := New("conn-1", rec, Deps{
		Store:     setupStore(t),
		Verifier:  v,
		AuthLimit: rate.Every(time.Hour),
		AuthBurst: 2,
	})

	for i := 0; i < 3; i++ {
		s.Handle(context.Background(), protocol.Authenticate{Token: "nope"})
	}

	out := rec.take()
	if len(out) != 3 {
		t.Fatalf("expected 3 events, got %d", len(out))
	}
	if out[2].ev.Data != "Too many authentication attempts" {
		t.Errorf("third attempt = %v", out[2].ev.Data)
	}
	if calls != 2 {
		t.Errorf("verifier called %d times, want 2", calls)
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	calls := 0
	v := auth.VerifierFunc(func(context.Context, string) (auth.Identity, error) {
		calls++
		return auth.Identity{UserID: "alice"}, nil
	})
	rec := &recorder{}
	s := New("conn-1", rec, Deps{Store: setupStore(t), Verifier: v})

	s.Handle(context.Background(), protocol.Authenticate{Token: ""})

	e := expectOne(t, rec, protocol.EventAuthError)
	if e.ev.Data != "Authentication failed" {
		t.Errorf("authError = %v", e.ev.Data)
	}
	if calls != 0 {
		t.Errorf("verifier called %d times for an empty token", calls)
	}
	if s.State() != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", s.State())
	}
}

func TestCommandsRequireAuthentication(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// Seed a trip that the anonymous commands will point at.
	alice := st.ForUser("alice")
	trip, _ := alice.CreateTrip(ctx, "Groceries", "2024-01-15")
	item, _ := alice.CreateItem(ctx, trip.ID, "Milk", grocery.DairyEggs, 1)

	s, rec := newSession(t, st)
	cmds := []protocol.Command{
		protocol.GetTrips{},
		protocol.CreateTrip{TripName: "Sneaky"},
		protocol.LoadTrip{TripID: trip.ID},
		protocol.AddItem{TripID: trip.ID, ItemName: "Eggs", Quantity: 1},
		protocol.TogglePurchased{ItemID: item.ID},
		protocol.UpdateQuantity{ItemID: item.ID, Quantity: 9, Valid: true},
		protocol.DeleteItem{ItemID: item.ID},
		protocol.DeleteTrip{TripID: trip.ID},
	}
	for _, cmd := range cmds {
		s.Handle(ctx, cmd)
		expectError(t, rec, "Not authenticated")
	}

	trips, _ := alice.ListTrips(ctx)
	if len(trips) != 1 {
		t.Errorf("expected 1 trip, got %d", len(trips))
	}
	items, _ := alice.ListItems(ctx, trip.ID)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Purchased || items[0].Quantity != 1 {
		t.Errorf("item mutated: %+v", items[0])
	}
	if rec.watched != "" {
		t.Error("anonymous session should not watch a trip")
	}
}

func TestCreateTrip(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")

	s.Handle(context.Background(), protocol.CreateTrip{TripName: "  Groceries ", TripDate: "2024-01-15"})

	out := rec.take()
	if len(out) != 2 {
		t.Fatalf("expected 2 events, got %d", len(out))
	}
	if out[0].ev.Name != protocol.EventTripCreated || out[1].ev.Name != protocol.EventCurrentTrip {
		t.Fatalf("event order = %s, %s", out[0].ev.Name, out[1].ev.Name)
	}
	for _, e := range out {
		if e.broadcast {
			t.Errorf("%s must be unicast", e.ev.Name)
		}
	}
	trip := out[0].ev.Data.(*model.Trip)
	if trip.TripName != "Groceries" {
		t.Errorf("trip name = %q", trip.TripName)
	}
	if trip.TripDate != "2024-01-15" {
		t.Errorf("trip date = %q", trip.TripDate)
	}
	if trip.UserID != "alice" {
		t.Errorf("user id = %q", trip.UserID)
	}
	if rec.watched != trip.ID {
		t.Errorf("watched = %q, want %q", rec.watched, trip.ID)
	}

	s.Handle(context.Background(), protocol.GetTrips{})
	e := expectOne(t, rec, protocol.EventTripsList)
	trips := e.ev.Data.([]model.Trip)
	if len(trips) != 1 || trips[0].TripName != "Groceries" {
		t.Errorf("tripsList = %+v", trips)
	}
}

func TestCreateTripDates(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "2024-06-01"},
		{"2024-02-29", "2024-02-29"},
		{"2024-03-05T18:00:00Z", "2024-03-05"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, rec := newSession(t, setupStore(t))
			login(t, s, rec, "alice-token")
			s.Handle(context.Background(), protocol.CreateTrip{TripName: "Run", TripDate: tt.in})
			out := rec.take()
			if len(out) != 2 {
				t.Fatalf("expected 2 events, got %d", len(out))
			}
			if got := out[0].ev.Data.(*model.Trip).TripDate; got != tt.want {
				t.Errorf("date = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateTripValidation(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")

	s.Handle(context.Background(), protocol.CreateTrip{TripName: "   "})
	expectError(t, rec, "Trip name is required")

	s.Handle(context.Background(), protocol.CreateTrip{TripName: "Run", TripDate: "next tuesday"})
	expectError(t, rec, "Invalid trip date")

	s.Handle(context.Background(), protocol.GetTrips{})
	e := expectOne(t, rec, protocol.EventTripsList)
	if trips := e.ev.Data.([]model.Trip); len(trips) != 0 {
		t.Errorf("expected no trips, got %d", len(trips))
	}
}

func TestGetTripsNewestFirst(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	for _, name := range []string{"First", "Second", "Third"} {
		s.Handle(context.Background(), protocol.CreateTrip{TripName: name})
	}
	rec.take()

	s.Handle(context.Background(), protocol.GetTrips{})
	trips := expectOne(t, rec, protocol.EventTripsList).ev.Data.([]model.Trip)

	var names []string
	for _, tr := range trips {
		names = append(names, tr.TripName)
	}
	if got := strings.Join(names, ","); got != "Third,Second,First" {
		t.Errorf("order = %s", got)
	}
}

// seedTrip creates a trip through the session and returns it.
func seedTrip(t *testing.T, s *Session, rec *recorder, name string) *model.Trip {
	t.Helper()
	s.Handle(context.Background(), protocol.CreateTrip{TripName: name, TripDate: "2024-01-15"})
	out := rec.take()
	if len(out) != 2 {
		t.Fatalf("create trip: %+v", out)
	}
	return out[0].ev.Data.(*model.Trip)
}

func addItem(t *testing.T, s *Session, rec *recorder, tripID, name string, qty int) *model.Item {
	t.Helper()
	s.Handle(context.Background(), protocol.AddItem{TripID: tripID, ItemName: name, Quantity: qty})
	return expectOne(t, rec, protocol.EventItemAdded).ev.Data.(*model.Item)
}

func TestLoadTrip(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")
	addItem(t, s, rec, trip.ID, "Milk", 1)
	addItem(t, s, rec, trip.ID, "Bread", 1)
	other := seedTrip(t, s, rec, "Hardware")
	if rec.watched != other.ID {
		t.Fatalf("watched = %q", rec.watched)
	}

	s.Handle(context.Background(), protocol.LoadTrip{TripID: trip.ID})

	out := rec.take()
	if len(out) != 2 {
		t.Fatalf("expected 2 events, got %d", len(out))
	}
	if out[0].ev.Name != protocol.EventCurrentTrip || out[1].ev.Name != protocol.EventTripItems {
		t.Fatalf("event order = %s, %s", out[0].ev.Name, out[1].ev.Name)
	}
	items := out[1].ev.Data.([]model.Item)
	if len(items) != 2 || items[0].Name != "Milk" || items[1].Name != "Bread" {
		t.Errorf("items = %+v", items)
	}
	if rec.watched != trip.ID {
		t.Errorf("watched = %q, want %q", rec.watched, trip.ID)
	}

	s.Handle(context.Background(), protocol.LoadTrip{TripID: "missing"})
	expectError(t, rec, "Failed to load trip")
	if rec.watched != trip.ID {
		t.Error("failed load must not change the watched trip")
	}
}

func TestAddItem(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")

	s.Handle(context.Background(), protocol.AddItem{TripID: trip.ID, ItemName: " Whole Milk ", Quantity: 2})

	e := expectOne(t, rec, protocol.EventItemAdded)
	if !e.broadcast {
		t.Error("itemAdded must be broadcast")
	}
	if e.tripID != trip.ID || e.ownerID != "alice" {
		t.Errorf("broadcast scope = %q/%q", e.tripID, e.ownerID)
	}
	item := e.ev.Data.(*model.Item)
	if item.Name != "Whole Milk" {
		t.Errorf("name = %q", item.Name)
	}
	if item.Category != grocery.DairyEggs {
		t.Errorf("category = %q, want %q", item.Category, grocery.DairyEggs)
	}
	if item.Quantity != 2 || item.Purchased {
		t.Errorf("item = %+v", item)
	}

	if got := addItem(t, s, rec, trip.ID, "chicken broth", 0); got.Category != grocery.MeatSeafood || got.Quantity != 1 {
		t.Errorf("chicken broth = %q x%d", got.Category, got.Quantity)
	}

	s.Handle(context.Background(), protocol.AddItem{TripID: trip.ID, ItemName: "  "})
	expectError(t, rec, "Item name is required")

	s.Handle(context.Background(), protocol.AddItem{TripID: "missing", ItemName: "Eggs", Quantity: 1})
	expectError(t, rec, "Failed to add item")
}

func TestTogglePurchasedTwice(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")
	item := addItem(t, s, rec, trip.ID, "Apples", 3)

	s.Handle(context.Background(), protocol.TogglePurchased{ItemID: item.ID})
	first := expectOne(t, rec, protocol.EventItemUpdated)
	if !first.broadcast || !first.ev.Data.(*model.Item).Purchased {
		t.Errorf("first toggle = %+v", first)
	}

	s.Handle(context.Background(), protocol.TogglePurchased{ItemID: item.ID})
	second := expectOne(t, rec, protocol.EventItemUpdated).ev.Data.(*model.Item)
	if second.Purchased {
		t.Error("two toggles should restore purchased=false")
	}

	s.Handle(context.Background(), protocol.TogglePurchased{ItemID: "missing"})
	expectError(t, rec, "Failed to update item")
}

func TestUpdateQuantity(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")
	item := addItem(t, s, rec, trip.ID, "Eggs", 1)

	s.Handle(context.Background(), protocol.UpdateQuantity{ItemID: item.ID, Quantity: 12, Valid: true})
	e := expectOne(t, rec, protocol.EventItemUpdated)
	if got := e.ev.Data.(*model.Item); got.Quantity != 12 || got.Category != grocery.DairyEggs {
		t.Errorf("updated = %+v", got)
	}

	invalid := []protocol.UpdateQuantity{
		{ItemID: item.ID, Valid: false},
		{ItemID: item.ID, Quantity: 0, Valid: true},
		{ItemID: item.ID, Quantity: -4, Valid: true},
	}
	for _, c := range invalid {
		s.Handle(context.Background(), c)
		expectError(t, rec, "Quantity must be a positive integer")
	}

	fractional, err := protocol.Decode([]byte(`{"event":"updateQuantity","data":{"itemId":"` + item.ID + `","quantity":2.5}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s.Handle(context.Background(), fractional)
	expectError(t, rec, "Quantity must be a positive integer")

	s.Handle(context.Background(), protocol.LoadTrip{TripID: trip.ID})
	out := rec.take()
	if items := out[1].ev.Data.([]model.Item); items[0].Quantity != 12 {
		t.Errorf("quantity changed by invalid update: %d", items[0].Quantity)
	}
}

func TestDeleteItem(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")
	item := addItem(t, s, rec, trip.ID, "Eggs", 1)

	s.Handle(context.Background(), protocol.DeleteItem{ItemID: item.ID})
	e := expectOne(t, rec, protocol.EventItemDeleted)
	if e.ev.Data != item.ID || e.tripID != trip.ID || !e.broadcast {
		t.Errorf("itemDeleted = %+v", e)
	}

	s.Handle(context.Background(), protocol.DeleteItem{ItemID: item.ID})
	expectError(t, rec, "Failed to delete item")
}

func TestDeleteTrip(t *testing.T) {
	st := setupStore(t)
	s, rec := newSession(t, st)
	login(t, s, rec, "alice-token")
	trip := seedTrip(t, s, rec, "Groceries")
	addItem(t, s, rec, trip.ID, "Eggs", 1)
	addItem(t, s, rec, trip.ID, "Milk", 1)

	s.Handle(context.Background(), protocol.DeleteTrip{TripID: trip.ID})
	e := expectOne(t, rec, protocol.EventTripDeleted)
	if e.ev.Data != trip.ID || !e.broadcast || e.ownerID != "alice" {
		t.Errorf("tripDeleted = %+v", e)
	}
	if rec.watched != "" {
		t.Errorf("deleted trip still watched: %q", rec.watched)
	}

	items, err := st.ForUser("alice").ListItems(context.Background(), trip.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected cascade, %d items left", len(items))
	}

	s.Handle(context.Background(), protocol.LoadTrip{TripID: trip.ID})
	expectError(t, rec, "Failed to load trip")

	s.Handle(context.Background(), protocol.DeleteTrip{TripID: trip.ID})
	expectError(t, rec, "Failed to delete trip")
}

func TestOtherUsersDataIsInvisible(t *testing.T) {
	st := setupStore(t)
	alice, arec := newSession(t, st)
	login(t, alice, arec, "alice-token")
	trip := seedTrip(t, alice, arec, "Alice's run")
	item := addItem(t, alice, arec, trip.ID, "Eggs", 1)

	bob, brec := newSession(t, st)
	login(t, bob, brec, "bob-token")

	tests := []struct {
		cmd  protocol.Command
		want string
	}{
		{protocol.LoadTrip{TripID: trip.ID}, "Failed to load trip"},
		{protocol.AddItem{TripID: trip.ID, ItemName: "Milk", Quantity: 1}, "Failed to add item"},
		{protocol.TogglePurchased{ItemID: item.ID}, "Failed to update item"},
		{protocol.UpdateQuantity{ItemID: item.ID, Quantity: 3, Valid: true}, "Failed to update item"},
		{protocol.DeleteItem{ItemID: item.ID}, "Failed to delete item"},
		{protocol.DeleteTrip{TripID: trip.ID}, "Failed to delete trip"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.cmd), func(t *testing.T) {
			bob.Handle(context.Background(), tt.cmd)
			expectError(t, brec, tt.want)
		})
	}

	bob.Handle(context.Background(), protocol.GetTrips{})
	if trips := expectOne(t, brec, protocol.EventTripsList).ev.Data.([]model.Trip); len(trips) != 0 {
		t.Errorf("bob sees %d trips", len(trips))
	}
}

func TestClosedSessionIgnoresCommands(t *testing.T) {
	s, rec := newSession(t, setupStore(t))
	login(t, s, rec, "alice-token")
	s.Close()
	s.Close()

	s.Handle(context.Background(), protocol.GetTrips{})
	s.Handle(context.Background(), protocol.Authenticate{Token: "alice-token"})
	if out := rec.take(); len(out) != 0 {
		t.Errorf("closed session emitted %+v", out)
	}
	if s.State() != Closed {
		t.Errorf("state = %v", s.State())
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "2024-06-01", false},
		{" 2024-01-15 ", "2024-01-15", false},
		{"2024-01-15T23:59:59-05:00", "2024-01-15", false},
		{"01/15/2024", "", true},
		{"2024-13-01", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeDate(tt.in, fixedNow)
		if (err != nil) != tt.wantErr {
			t.Errorf("normalizeDate(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("normalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// Late evening in New York is already the next day in UTC.
	eastern := time.FixedZone("EST", -5*60*60)
	late := time.Date(2024, 6, 1, 22, 30, 0, 0, eastern)
	if got, _ := normalizeDate("", late); got != "2024-06-02" {
		t.Errorf("normalizeDate with non-UTC clock = %q, want 2024-06-02", got)
	}
}
