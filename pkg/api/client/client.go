package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the Karoba account API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents a failure envelope returned by the API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e APIError) Error() string {
	switch {
	case e.Message == "" && e.Kind == "":
		return fmt.Sprintf("api request failed with status %d", e.Status)
	case e.Kind == "":
		return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("api request failed (%d %s): %s", e.Status, e.Kind, e.Message)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr != nil {
			return APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return APIError{Status: resp.StatusCode, Kind: env.Error, Message: strings.TrimSpace(env.Message)}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if v == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Account reflects the account payloads emitted by the API.
type Account struct {
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

// TokenPair includes access and refresh tokens. ExpiresIn is in seconds.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// LoginResponse captures the session payload emitted by the API.
type LoginResponse struct {
	User   Account   `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// AccountList is a page of accounts.
type AccountList struct {
	Users      []Account  `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// ListOptions filters an account listing. Zero values use the server defaults.
type ListOptions struct {
	Page            int
	Limit           int
	IncludeInactive bool
}

// CreateAccountInput is the payload for creating an account.
type CreateAccountInput struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phone     string   `json:"phone"`
	BirthDate string   `json:"birthDate,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Role      string   `json:"role,omitempty"`
}

// UpdateAccountInput carries the fields to change. Nil fields are left alone.
type UpdateAccountInput struct {
	FirstName *string   `json:"firstName,omitempty"`
	LastName  *string   `json:"lastName,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	BirthDate *string   `json:"birthDate,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
	Role      *string   `json:"role,omitempty"`
	Password  *string   `json:"password,omitempty"`
	Version   *int64    `json:"version,omitempty"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// ListAccounts returns one page of accounts.
func (c *Client) ListAccounts(ctx context.Context, token string, opts ListOptions) (AccountList, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.IncludeInactive {
		query.Set("includeInactive", "true")
	}
	path := "/users"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var list AccountList
	if err := c.do(ctx, http.MethodGet, path, nil, token, &list); err != nil {
		return AccountList{}, err
	}
	return list, nil
}

// GetAccount fetches a single account.
func (c *Client) GetAccount(ctx context.Context, token, id string) (Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// CreateAccount creates an account.
func (c *Client) CreateAccount(ctx context.Context, token string, input CreateAccountInput) (Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodPost, "/users", input, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// UpdateAccount applies a partial update.
func (c *Client) UpdateAccount(ctx context.Context, token, id string, input UpdateAccountInput) (Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), input, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// DeactivateAccount soft-deletes an account.
func (c *Client) DeactivateAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, token, nil)
}

// Profile returns the caller's own account.
func (c *Client) Profile(ctx context.Context, token string) (Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/users/profile", nil, token, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}
