package identity

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	// ErrInvalidRegistration is matched by every RegistrationError.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrNotPending is returned when activating an account that is already active.
	ErrNotPending = errors.New("account is not pending activation")
	// ErrInvalidCredentials is returned when a password does not match the account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordTooShort is returned by Activate for passwords under six characters.
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// RegistrationError lists the registration fields that failed validation,
// keyed by form field name.
type RegistrationError struct {
	Fields map[string]string
}

func (e *RegistrationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrInvalidRegistration.Error() + ": " + strings.Join(parts, "; ")
}

func (e *RegistrationError) Unwrap() error { return ErrInvalidRegistration }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Service manages the account lifecycle.
type Service struct {
	repo  Repository
	ids   *snowflake.Node
	clock func() time.Time
}

// NewService creates a new identity service. node selects the snowflake worker
// used to mint login IDs and must be unique per running instance.
func NewService(repo Repository, node int64) (*Service, error) {
	ids, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &Service{repo: repo, ids: ids, clock: time.Now}, nil
}

// Register creates a pending USER account and returns it with its generated
// login ID. A pending account already holding the email is replaced, so an
// abandoned registration can be started over.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (Account, error) {
	in = normalize(in)
	if err := validateRegistration(in); err != nil {
		return Account{}, err
	}

	account := Account{
		User: User{
			ID:            uuid.NewString(),
			FullName:      in.FullName,
			Email:         in.Email,
			PhoneNumber:   in.PhoneNumber,
			Role:          RoleUser,
			AadhaarNumber: in.AadhaarNumber,
			Address:       in.Address,
		},
		LoginID:   s.ids.Generate().String(),
		Status:    StatusPending,
		CreatedAt: s.clock().UTC(),
	}
	err := s.repo.Create(ctx, account)
	if errors.Is(err, ErrExists) {
		err = s.replacePending(ctx, account)
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *Service) replacePending(ctx context.Context, account Account) error {
	existing, err := s.repo.FindByEmail(ctx, account.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrExists
	case err != nil:
		return err
	case existing.Status != StatusPending:
		return ErrExists
	}
	if err := s.repo.DeletePending(ctx, existing.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.Create(ctx, account)
}

// Activate sets the password of a pending account and marks it active.
func (s *Service) Activate(ctx context.Context, id, password string) (Account, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Account{}, ErrPasswordTooShort
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.Status != StatusPending {
		return Account{}, ErrNotPending
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	if err := s.repo.Activate(ctx, id, hash); err != nil {
		return Account{}, err
	}
	account.PasswordHash = hash
	account.Status = StatusActive
	return account, nil
}

// Lookup finds an active account by its login ID.
func (s *Service) Lookup(ctx context.Context, loginID string) (Account, error) {
	account, err := s.repo.FindByLoginID(ctx, strings.TrimSpace(loginID))
	if err != nil {
		return Account{}, err
	}
	if account.Status != StatusActive {
		return Account{}, ErrNotFound
	}
	return account, nil
}

// Authenticate finds the active account for loginID and checks its password.
func (s *Service) Authenticate(ctx context.Context, loginID, password string) (Account, error) {
	account, err := s.Lookup(ctx, loginID)
	if err != nil {
		return Account{}, err
	}
	if len(account.PasswordHash) == 0 {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Get returns the account with the given internal ID.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

func validateRegistration(in RegistrationInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = registrationMessage(fe)
		}
	}
	return &RegistrationError{Fields: fields}
}

func registrationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "full_name":
		if fe.Tag() == "required" {
			return "Full name is required"
		}
		return "Full name is too long"
	case "email":
		if fe.Tag() == "required" {
			return "Email is required"
		}
		return "Enter a valid email address"
	case "phone_number":
		if fe.Tag() == "required" {
			return "Phone number is required"
		}
		return "Phone number must be 10 to 15 digits"
	case "aadhaar_number":
		return "Aadhaar number must be 12 digits"
	case "address":
		return "Address is too long"
	default:
		return fe.Error()
	}
}

func normalize(in RegistrationInput) RegistrationInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.AadhaarNumber = strings.ReplaceAll(strings.TrimSpace(in.AadhaarNumber), " ", "")
	in.Address = strings.TrimSpace(in.Address)
	return in
}
