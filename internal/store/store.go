package store

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by writes that matched no row the user owns.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by a compare-and-swap write that lost a race.
	ErrConflict = errors.New("conflict")
)

// Dialect selects the placeholder style of the underlying database.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Store reads and writes trips and shopping items. All access goes through a
// Scope bound to one user.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	toggleCAS bool
	now       func() time.Time
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithToggleCAS makes TogglePurchased fail with ErrConflict when the item
// changed between its read and its write.
func WithToggleCAS(on bool) Option {
	return func(s *Store) { s.toggleCAS = on }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForUser returns a handle that only sees rows owned by userID.
func (s *Store) ForUser(userID string) *Scope {
	return &Scope{s: s, userID: userID}
}

// Scope is a user-bound view of the store.
type Scope struct {
	s      *Store
	userID string
}

// UserID returns the owner this scope is bound to.
func (sc *Scope) UserID() string {
	return sc.userID
}

// q rewrites ? placeholders for the store's dialect.
func (s *Store) q(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
