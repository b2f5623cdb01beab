package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, venue_id, full_name, email, hashed_password, pin, role, created_at`

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.VenueID, &u.FullName, &u.Email, &u.HashedPassword, &u.Pin, &u.Role, &u.CreatedAt,
	)
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByVenueAndPinParams identify a staff member by venue + PIN.
type GetUserByVenueAndPinParams struct {
	VenueID uuid.UUID
	Pin     pgtype.Text
}

func (q *Queries) GetUserByVenueAndPin(ctx context.Context, arg GetUserByVenueAndPinParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE venue_id = $1 AND pin = $2`,
		arg.VenueID, arg.Pin,
	)
	return scanUser(row)
}

func (q *Queries) ListUsersByVenue(ctx context.Context, venueID uuid.UUID) ([]User, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE venue_id = $1 ORDER BY full_name`,
		venueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUserParams describe a new staff member. Pin may be NULL for staff who
// only log in with email + password.
type CreateUserParams struct {
	VenueID        uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (venue_id, full_name, email, hashed_password, pin, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		arg.VenueID, arg.FullName, arg.Email, arg.HashedPassword, arg.Pin, arg.Role,
	)
	return scanUser(row)
}

// GetManagerByVenueAndPin finds an approval-capable user (MANAGER or OWNER)
// by PIN, used to mint elevated approval credentials.
func (q *Queries) GetManagerByVenueAndPin(ctx context.Context, arg GetUserByVenueAndPinParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE venue_id = $1 AND pin = $2 AND role IN ('MANAGER','OWNER')`,
		arg.VenueID, arg.Pin,
	)
	return scanUser(row)
}
