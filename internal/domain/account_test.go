package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNewAccount() NewAccount {
	return NewAccount{
		Email:          "  USER@Example.com ",
		CredentialHash: []byte("hash"),
		FirstName:      " Amani ",
		LastName:       " Wanjiru",
		Phone:          " +254700000000 ",
		Interests:      []string{" Yoga", "", "Spa "},
	}
}

func TestNewAccountNormalize(t *testing.T) {
	n := validNewAccount()
	born := time.Date(1990, 4, 12, 17, 30, 0, 0, time.FixedZone("EAT", 3*3600))
	n.BirthDate = &born
	n.Normalize()

	assert.Equal(t, "user@example.com", n.Email)
	assert.Equal(t, "Amani", n.FirstName)
	assert.Equal(t, "Wanjiru", n.LastName)
	assert.Equal(t, "+254700000000", n.Phone)
	assert.Equal(t, []string{"Yoga", "Spa"}, n.Interests)
	assert.Equal(t, RoleMember, n.Role)
	assert.Equal(t, time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC), *n.BirthDate)
	require.NoError(t, n.Validate())
}

func TestNewAccountValidateReportsField(t *testing.T) {
	cases := map[string]func(*NewAccount){
		"email":     func(n *NewAccount) { n.Email = "   " },
		"password":  func(n *NewAccount) { n.CredentialHash = nil },
		"firstName": func(n *NewAccount) { n.FirstName = " " },
		"lastName":  func(n *NewAccount) { n.LastName = "" },
		"phone":     func(n *NewAccount) { n.Phone = "\t" },
		"role":      func(n *NewAccount) { n.Role = "owner" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			n := validNewAccount()
			mutate(&n)
			n.Normalize()
			var verr *ValidationError
			require.True(t, errors.As(n.Validate(), &verr))
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestAccountPatchIsEmpty(t *testing.T) {
	version := int64(3)
	assert.True(t, AccountPatch{}.IsEmpty())
	assert.True(t, AccountPatch{ExpectedVersion: &version}.IsEmpty())
	assert.False(t, AccountPatch{ClearBirthDate: true}.IsEmpty())
	interests := []string{}
	assert.False(t, AccountPatch{Interests: &interests}.IsEmpty())
}

func TestAccountPatchValidate(t *testing.T) {
	blank := "  "
	p := AccountPatch{Phone: &blank}
	p.Normalize()
	var verr *ValidationError
	require.True(t, errors.As(p.Validate(), &verr))
	assert.Equal(t, "phone", verr.Field)

	bad := Role("root")
	assert.Error(t, AccountPatch{Role: &bad}.Validate())
}

func TestAccountPatchApply(t *testing.T) {
	born := time.Date(1988, 1, 2, 0, 0, 0, 0, time.UTC)
	a := Account{FirstName: "Old", BirthDate: &born, Interests: []string{"Safari"}, IsActive: true}
	name := "New"
	interests := []string{"Yoga", "Spa"}
	inactive := false
	AccountPatch{FirstName: &name, ClearBirthDate: true, Interests: &interests, IsActive: &inactive}.Apply(&a)

	assert.Equal(t, "New", a.FirstName)
	assert.Nil(t, a.BirthDate)
	assert.Equal(t, []string{"Yoga", "Spa"}, a.Interests)
	assert.False(t, a.IsActive)
}

func TestInterestsCodec(t *testing.T) {
	raw, err := EncodeInterests([]string{"Yoga", "Spa"})
	require.NoError(t, err)
	assert.Equal(t, `["Yoga","Spa"]`, raw)

	empty, err := EncodeInterests(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, empty)

	out, err := DecodeInterests(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yoga", "Spa"}, out)

	out, err = DecodeInterests("")
	require.NoError(t, err)
	assert.Empty(t, out)

	for _, bad := range []string{"Yoga,Spa", "null", `{"a":1}`, `[1,2]`} {
		_, err := DecodeInterests(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewAccountEventOmitsCredential(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	evt := NewAccountEvent(AccountCreated, &Account{ID: "a-1", Email: "a@b.c", CredentialHash: []byte("secret-hash")}, at)
	assert.Equal(t, AccountCreated, evt.Type)
	assert.Equal(t, "a-1", evt.AccountID)
	assert.Equal(t, at, evt.OccurredAt)
}
