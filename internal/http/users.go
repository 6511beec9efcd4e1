package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/internal/service/notify"
	"github.com/karoba/wellness/internal/ws"
)

const maxBodyBytes = 1 << 20

func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	page, err := positiveIntParam(query, "page", account.DefaultPage)
	if err != nil {
		r.writeServiceError(w, req, "list users", err)
		return
	}
	limit, err := positiveIntParam(query, "limit", account.DefaultPageSize)
	if err != nil {
		r.writeServiceError(w, req, "list users", err)
		return
	}
	includeInactive := false
	if raw := strings.TrimSpace(query.Get("includeInactive")); raw != "" {
		if includeInactive, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, "includeInactive must be true or false")
			return
		}
	}

	result, err := r.accounts.List(req.Context(), account.ListInput{Page: page, Limit: limit, IncludeInactive: includeInactive})
	if err != nil {
		r.writeServiceError(w, req, "list users", err)
		return
	}
	writeData(w, http.StatusOK, newListView(result), "")
}

func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) {
	var payload createRequest
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	created, err := r.accounts.Create(req.Context(), payload.input())
	if err != nil {
		r.writeServiceError(w, req, "create user", err)
		return
	}
	writeData(w, http.StatusCreated, newAccountView(created), "account created")
}

func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	found, err := r.accounts.Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.writeServiceError(w, req, "get user", err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(found), "")
}

func (r *Router) handleUpdateUser(w http.ResponseWriter, req *http.Request) {
	var payload updateRequest
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	updated, err := r.accounts.Update(req.Context(), mux.Vars(req)["id"], payload.input())
	if err != nil {
		r.writeServiceError(w, req, "update user", err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(updated), "account updated")
}

func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	caller, _ := CallerFromContext(req.Context())
	if err := r.accounts.Deactivate(req.Context(), caller.ID, mux.Vars(req)["id"]); err != nil {
		r.writeServiceError(w, req, "deactivate user", err)
		return
	}
	writeData(w, http.StatusOK, nil, "account deactivated")
}

func (r *Router) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	caller, _ := CallerFromContext(req.Context())
	profile, err := r.accounts.Profile(req.Context(), caller.ID)
	if err != nil {
		r.writeServiceError(w, req, "get profile", err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(profile), "")
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	var payload profileRequest
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	caller, _ := CallerFromContext(req.Context())
	updated, err := r.accounts.UpdateProfile(req.Context(), caller.ID, payload.patch())
	if err != nil {
		r.writeServiceError(w, req, "update profile", err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(updated), "profile updated")
}

func (r *Router) handleAccountFeed(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(notify.AccountsTopic, client)
	r.metrics.wsSubscribers.Inc()
	go func() {
		defer func() {
			r.metrics.wsSubscribers.Dec()
			r.hub.Unregister(notify.AccountsTopic, client)
			client.Close()
		}()
		client.Drain()
	}()
}

func (r *Router) decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, kindValidation, verr.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON body")
		return false
	}
	return true
}

func positiveIntParam(query url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &domain.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return n, nil
}
