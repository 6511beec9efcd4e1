package domain

import (
	"strings"
	"time"
)

// Role is the capability level of an account.
type Role string

const (
	RoleMember        Role = "member"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdministrator
}

// Account represents a Karoba guest or operator account.
type Account struct {
	ID             string
	Email          string
	CredentialHash []byte `json:"-"`
	FirstName      string
	LastName       string
	Phone          string
	BirthDate      *time.Time
	Interests      []string
	Role           Role
	IsActive       bool
	EmailVerified  bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
}

// NewAccount carries the fields needed to create an account.
// CredentialHash must already be hashed.
type NewAccount struct {
	Email          string
	CredentialHash []byte
	FirstName      string
	LastName       string
	Phone          string
	BirthDate      *time.Time
	Interests      []string
	Role           Role
}

// Normalize trims text fields, lowercases the email and defaults the role.
func (n *NewAccount) Normalize() {
	n.Email = NormalizeEmail(n.Email)
	n.FirstName = strings.TrimSpace(n.FirstName)
	n.LastName = strings.TrimSpace(n.LastName)
	n.Phone = strings.TrimSpace(n.Phone)
	n.Interests = CleanInterests(n.Interests)
	if n.Role == "" {
		n.Role = RoleMember
	}
	if n.BirthDate != nil {
		d := truncateDate(*n.BirthDate)
		n.BirthDate = &d
	}
}

// Validate checks required fields. Call Normalize first.
func (n NewAccount) Validate() error {
	switch {
	case n.Email == "":
		return &ValidationError{Field: "email", Reason: "is required"}
	case !strings.Contains(n.Email, "@"):
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	case len(n.CredentialHash) == 0:
		return &ValidationError{Field: "password", Reason: "is required"}
	case n.FirstName == "":
		return &ValidationError{Field: "firstName", Reason: "is required"}
	case n.LastName == "":
		return &ValidationError{Field: "lastName", Reason: "is required"}
	case n.Phone == "":
		return &ValidationError{Field: "phone", Reason: "is required"}
	case !n.Role.Valid():
		return &ValidationError{Field: "role", Reason: "must be member or administrator"}
	}
	return nil
}

// AccountPatch is a partial update. Nil fields are left untouched.
type AccountPatch struct {
	FirstName      *string
	LastName       *string
	Phone          *string
	BirthDate      *time.Time
	ClearBirthDate bool
	Interests      *[]string
	EmailVerified  *bool
	IsActive       *bool
	Role           *Role

	// ExpectedVersion, when set, makes the write conditional on the stored version.
	ExpectedVersion *int64
}

// IsEmpty reports whether the patch touches no field.
func (p AccountPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil &&
		p.BirthDate == nil && !p.ClearBirthDate && p.Interests == nil &&
		p.EmailVerified == nil && p.IsActive == nil && p.Role == nil
}

// Normalize trims the supplied text fields in place.
func (p *AccountPatch) Normalize() {
	for _, field := range []*string{p.FirstName, p.LastName, p.Phone} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
	if p.Interests != nil {
		cleaned := CleanInterests(*p.Interests)
		p.Interests = &cleaned
	}
	if p.BirthDate != nil {
		d := truncateDate(*p.BirthDate)
		p.BirthDate = &d
	}
}

// Validate rejects blank required fields and unknown roles.
func (p AccountPatch) Validate() error {
	if p.FirstName != nil && *p.FirstName == "" {
		return &ValidationError{Field: "firstName", Reason: "must not be empty"}
	}
	if p.LastName != nil && *p.LastName == "" {
		return &ValidationError{Field: "lastName", Reason: "must not be empty"}
	}
	if p.Phone != nil && *p.Phone == "" {
		return &ValidationError{Field: "phone", Reason: "must not be empty"}
	}
	if p.Role != nil && !p.Role.Valid() {
		return &ValidationError{Field: "role", Reason: "must be member or administrator"}
	}
	if p.BirthDate != nil && p.ClearBirthDate {
		return &ValidationError{Field: "birthDate", Reason: "cannot be set and cleared at once"}
	}
	return nil
}

// Apply copies the patch onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.Phone != nil {
		a.Phone = *p.Phone
	}
	if p.BirthDate != nil {
		d := *p.BirthDate
		a.BirthDate = &d
	}
	if p.ClearBirthDate {
		a.BirthDate = nil
	}
	if p.Interests != nil {
		a.Interests = append([]string(nil), (*p.Interests)...)
	}
	if p.EmailVerified != nil {
		a.EmailVerified = *p.EmailVerified
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CleanInterests trims entries and drops blanks, keeping order. Never returns nil.
func CleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
