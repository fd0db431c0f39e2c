package model

import "time"

// Role names carried in the JWT "role" claim.  EMPLOYEE and ADMIN are the
// elevated roles that may check out on behalf of other users.
const (
    RoleCustomer = "CUSTOMER"
    RoleEmployee = "EMPLOYEE"
    RoleAdmin    = "ADMIN"
)

// IsElevated reports whether role may act on resources owned by others.
func IsElevated(role string) bool {
    return role == RoleEmployee || role == RoleAdmin
}

// User represents an application user record as stored in the
// `users` table.  The checkout engine only creates users during a
// membership signup; everything else about identities is owned by the
// identity service.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  FirstName    – given name.
//  LastName     – family name.
//  PasswordHash – bcrypt hashed password.
//  Role         – name of the role (CUSTOMER, EMPLOYEE or ADMIN).
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    FirstName    string    // users.first_name
    LastName     string    // users.last_name
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
}
