package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return cli
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("  api.karoba.test/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://api.karoba.test", cli.baseURL)

	cli, err = New("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cli.baseURL)
}

func TestLoginUnwrapsEnvelope(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@karoba.test", body["email"])
		_, _ = w.Write([]byte(`{"success":true,"data":{"user":{"id":"u1","email":"ada@karoba.test","role":"administrator"},"tokens":{"accessToken":"tok","refreshToken":"ref","expiresIn":900}}}`))
	})

	resp, err := cli.Login(context.Background(), "ada@karoba.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "tok", resp.Tokens.AccessToken)
	assert.EqualValues(t, 900, resp.Tokens.ExpiresIn)
}

func TestListAccountsSendsQueryAndToken(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "true", r.URL.Query().Get("includeInactive"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"users":[{"id":"a"},{"id":"b"}],"pagination":{"page":2,"limit":5,"total":7,"totalPages":2}}}`))
	})

	list, err := cli.ListAccounts(context.Background(), "tok", ListOptions{Page: 2, Limit: 5, IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, list.Users, 2)
	assert.Equal(t, 7, list.Pagination.Total)
	assert.Equal(t, 2, list.Pagination.TotalPages)
}

func TestFailureEnvelopeBecomesAPIError(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":"self_deletion_forbidden","message":"cannot deactivate your own account"}`))
	})

	err := cli.DeactivateAccount(context.Background(), "tok", "me")
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "self_deletion_forbidden", apiErr.Kind)
	assert.Contains(t, apiErr.Error(), "cannot deactivate your own account")
}

func TestNonJSONErrorKeepsBody(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := cli.Profile(context.Background(), "tok")
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestUpdateAccountOmitsUnsetFields(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/users/u1", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"phone": "+254700000001", "version": float64(3)}, body)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"u1","phone":"+254700000001","version":4}}`))
	})

	phone := "+254700000001"
	version := int64(3)
	acct, err := cli.UpdateAccount(context.Background(), "tok", "u1", UpdateAccountInput{Phone: &phone, Version: &version})
	require.NoError(t, err)
	assert.EqualValues(t, 4, acct.Version)
}
