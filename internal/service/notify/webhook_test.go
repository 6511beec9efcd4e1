package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karoba/wellness/internal/domain"
)

func TestWebhookPostsEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Karoba-Token"))
		assert.Equal(t, string(domain.AccountCreated), r.Header.Get("X-Karoba-Event"))
		var got domain.AccountEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "acc-1", got.AccountID)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook, err := NewWebhook(srv.URL, " secret ", nil)
	require.NoError(t, err)
	require.NoError(t, hook.Notify(context.Background(), sampleEvent()))
}

func TestWebhookMapsStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrWebhookUnauthorized},
		{http.StatusBadRequest, ErrWebhookRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		hook, err := NewWebhook(srv.URL, "", nil)
		require.NoError(t, err)
		err = hook.Notify(context.Background(), sampleEvent())
		assert.True(t, errors.Is(err, tc.want), "status %d: %v", tc.status, err)
		assert.Contains(t, err.Error(), "nope")
		srv.Close()
	}
}

func TestWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook, err := NewWebhook(srv.URL, "", nil)
	require.NoError(t, err)
	err = hook.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook("  ", "", nil)
	assert.Error(t, err)
}
