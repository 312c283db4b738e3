package identity

import "time"

// Role is the closed set of portal roles.
type Role string

const (
	RoleUser    Role = "USER"
	RoleOfficer Role = "OFFICER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleOfficer
}

// User is the profile kept in a client session. Field names follow the stored
// user_data layout.
type User struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	Role          Role   `json:"role"`
	AadhaarNumber string `json:"aadhaar_number,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Account status values.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// Account is a registered user as persisted by a Repository.
type Account struct {
	User
	LoginID      string
	PasswordHash []byte
	Status       string
	CreatedAt    time.Time
}

// RegistrationInput carries the registration form. The form tags name the
// fields reported in a RegistrationError.
type RegistrationInput struct {
	FullName      string `form:"full_name" validate:"required,max=200"`
	Email         string `form:"email" validate:"required,email"`
	PhoneNumber   string `form:"phone_number" validate:"required,number,min=10,max=15"`
	AadhaarNumber string `form:"aadhaar_number" validate:"omitempty,number,len=12"`
	Address       string `form:"address" validate:"max=500"`
}
