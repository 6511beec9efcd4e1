package httpx

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/internal/service/auth"
)

// accountView is the wire shape of an account. It has no credential field.
type accountView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Phone         string     `json:"phone"`
	BirthDate     *string    `json:"birthDate"`
	Interests     []string   `json:"interests"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastLogin     *time.Time `json:"lastLogin"`
}

func newAccountView(a *domain.Account) accountView {
	view := accountView{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Interests:     a.Interests,
		Role:          string(a.Role),
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		LastLogin:     a.LastLogin,
	}
	if view.Interests == nil {
		view.Interests = []string{}
	}
	if a.BirthDate != nil {
		d := a.BirthDate.Format(time.DateOnly)
		view.BirthDate = &d
	}
	return view
}

type paginationView struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listView struct {
	Users      []accountView  `json:"users"`
	Pagination paginationView `json:"pagination"`
}

func newListView(p account.Page) listView {
	users := make([]accountView, 0, len(p.Accounts))
	for i := range p.Accounts {
		users = append(users, newAccountView(&p.Accounts[i]))
	}
	return listView{
		Users: users,
		Pagination: paginationView{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	}
}

type tokensView struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type sessionView struct {
	User   accountView `json:"user"`
	Tokens tokensView  `json:"tokens"`
}

func newSessionView(a *domain.Account, t auth.TokenPair) sessionView {
	return sessionView{
		User: newAccountView(a),
		Tokens: tokensView{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			ExpiresIn:    int64(t.ExpiresIn.Seconds()),
		},
	}
}

// optionalDate tells an absent birthDate apart from an explicit null.
type optionalDate struct {
	set   bool
	null  bool
	value time.Time
}

func (d *optionalDate) UnmarshalJSON(raw []byte) error {
	d.set = true
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		d.null = true
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return &domain.ValidationError{Field: "birthDate", Reason: "must be a date string"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.null = true
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.value = t
			return nil
		}
	}
	return &domain.ValidationError{Field: "birthDate", Reason: "must be YYYY-MM-DD or RFC 3339"}
}

func (d optionalDate) ptr() *time.Time {
	if !d.set || d.null {
		return nil
	}
	t := d.value
	return &t
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createRequest struct {
	Email     string       `json:"email"`
	Password  string       `json:"password"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Phone     string       `json:"phone"`
	BirthDate optionalDate `json:"birthDate"`
	Interests []string     `json:"interests"`
	Role      string       `json:"role"`
}

func (c createRequest) input() account.CreateInput {
	return account.CreateInput{
		Email:     c.Email,
		Password:  c.Password,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		BirthDate: c.BirthDate.ptr(),
		Interests: c.Interests,
		Role:      domain.Role(strings.TrimSpace(c.Role)),
	}
}

// profileRequest holds the fields an account owner may change.
type profileRequest struct {
	FirstName *string      `json:"firstName"`
	LastName  *string      `json:"lastName"`
	Phone     *string      `json:"phone"`
	BirthDate optionalDate `json:"birthDate"`
	Interests *[]string    `json:"interests"`
	Version   *int64       `json:"version"`
}

func (p profileRequest) patch() domain.AccountPatch {
	patch := domain.AccountPatch{
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Phone:           p.Phone,
		BirthDate:       p.BirthDate.ptr(),
		ClearBirthDate:  p.BirthDate.set && p.BirthDate.null,
		Interests:       p.Interests,
		ExpectedVersion: p.Version,
	}
	return patch
}

// updateRequest extends profileRequest with administrator-only fields.
type updateRequest struct {
	profileRequest
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func (u updateRequest) input() account.UpdateInput {
	patch := u.profileRequest.patch()
	if u.Role != nil {
		role := domain.Role(strings.TrimSpace(*u.Role))
		patch.Role = &role
	}
	return account.UpdateInput{Patch: patch, Password: u.Password}
}
