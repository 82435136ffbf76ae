package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// UserStore resolves acting users for authorisation decisions.
type UserStore interface {
	// GetByID retrieves a user by ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)
}

// SQLiteUserStore reads users and their scope grants from SQLite.
//
// Unit and room grants live in user_unit_access; guest device grants and
// their validity window live in guest_device_access. The authoritative
// user records are owned by the CRUD backend and mirrored here.
type SQLiteUserStore struct {
	db *sql.DB
}

// NewSQLiteUserStore creates a new SQLite-backed user store.
func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

// GetByID retrieves a user with their unit, room and guest grants.
func (s *SQLiteUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	var role, createdAt string
	var active int

	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, role, is_active, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.DisplayName, &role, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}

	u.Role = Role(role)
	u.IsActive = active != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if u.Role == RoleTenant {
		if err := s.loadTenantScope(ctx, &u); err != nil {
			return nil, err
		}
	}
	if u.Role == RoleGuest {
		if err := s.loadGuestAccess(ctx, &u); err != nil {
			return nil, err
		}
	}

	return &u, nil
}

func (s *SQLiteUserStore) loadTenantScope(ctx context.Context, u *User) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT unit_id, room_id FROM user_unit_access WHERE user_id = ? ORDER BY unit_id", u.ID)
	if err != nil {
		return fmt.Errorf("getting unit access: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var unitID, roomID sql.NullString
		if err := rows.Scan(&unitID, &roomID); err != nil {
			return fmt.Errorf("scanning unit access: %w", err)
		}
		if unitID.Valid {
			u.UnitIDs = append(u.UnitIDs, unitID.String)
		}
		if roomID.Valid {
			u.RoomIDs = append(u.RoomIDs, roomID.String)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating unit access: %w", err)
	}
	return nil
}

func (s *SQLiteUserStore) loadGuestAccess(ctx context.Context, u *User) error {
	var deviceIDsJSON, validFrom, validUntil string

	err := s.db.QueryRowContext(ctx,
		"SELECT device_ids, valid_from, valid_until FROM guest_device_access WHERE user_id = ?", u.ID,
	).Scan(&deviceIDsJSON, &validFrom, &validUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // guest with no grant: no access
		}
		return fmt.Errorf("getting guest access: %w", err)
	}

	g := &GuestAccess{}
	if err := json.Unmarshal([]byte(deviceIDsJSON), &g.DeviceIDs); err != nil {
		return fmt.Errorf("decoding guest device ids: %w", err)
	}
	if g.ValidFrom, err = time.Parse(time.RFC3339, validFrom); err != nil {
		return fmt.Errorf("parsing guest valid_from %q: %w", validFrom, err)
	}
	if g.ValidUntil, err = time.Parse(time.RFC3339, validUntil); err != nil {
		return fmt.Errorf("parsing guest valid_until %q: %w", validUntil, err)
	}

	u.GuestAccess = g
	return nil
}

// MemoryUserStore is an in-memory user store for tests and development.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

// Put adds or replaces a user.
func (s *MemoryUserStore) Put(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// GetByID retrieves a user by ID.
func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cpy := *u
		return &cpy, nil
	}
	return nil, ErrUserNotFound
}
