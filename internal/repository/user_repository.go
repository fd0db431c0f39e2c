package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// UserRepo reads and creates users on behalf of the membership signup
// checkout.  Every method takes the signup's transaction so the account
// only exists if the order commits too.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// GetByEmailTx fetches a user by normalized email and locks the row.
// ErrNotFound is returned when no user matches.
func (r *UserRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.User, error) {
	var u model.User
	err := tx.QueryRowContext(ctx,
		"SELECT id,email,first_name,last_name,password_hash,role,is_active,created_at FROM users WHERE email=? LIMIT 1 FOR UPDATE",
		NormalizeEmail(email)).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, database.Classify(err)
	}
	return u, nil
}

// CreateTx inserts a customer and returns its id.  PasswordHash must
// already be hashed.  A concurrent signup with the same email yields
// ErrEmailExists (also classified as an integrity error).
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User) (uint64, error) {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleCustomer
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, first_name, last_name, password_hash, role) VALUES (?,?,?,?,?)",
		u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role)
	if err != nil {
		if database.IsDuplicate(err) {
			return 0, database.Classify(fmt.Errorf("%w: %w", ErrEmailExists, err))
		}
		return 0, database.Classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = uint64(id)
	u.IsActive = true
	return u.ID, nil
}
