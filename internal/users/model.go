package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// User represents a registered participant on the credit ledger.
type User struct {
	ID           uuid.UUID  `json:"id"         db:"id"`
	Email        string     `json:"email"      db:"email"`
	PasswordHash string     `json:"-"          db:"password_hash"`
	Name         string     `json:"name"       db:"name"`
	Company      string     `json:"company"    db:"company"`
	Region       string     `json:"region"     db:"region"`
	Role         model.Role `json:"role"       db:"role"`
	IsActive     bool       `json:"is_active"  db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Identity is the minimal view of a user the ledger needs when resolving
// event counterparties and transfer recipients.
type Identity struct {
	ID       uuid.UUID  `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	IsActive bool       `json:"is_active"`
}

// Identity returns the user's ledger-facing identity view.
func (u *User) Identity() *Identity {
	return &Identity{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
}

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Company  string `json:"company"`
	Region   string `json:"region"`
	Role     string `json:"role" binding:"required"`
}

// LoginRequest is the payload for credential login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
