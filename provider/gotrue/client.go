package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eadcore/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Client is a CredentialStore backed by a GoTrue style auth service. Every
// method maps to one REST endpoint; session state lives entirely on the
// caller's side.
type Client struct {
	config Config
	http   *http.Client
	logger auth.Logger
}

var (
	_ auth.CredentialStore          = (*Client)(nil)
	_ auth.FragmentSessionExtractor = (*Client)(nil)
)

// NewClient creates a hosted-backend credential store.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger
	}

	return &Client{
		config: cfg,
		http:   cfg.httpClient(),
		logger: logger,
	}, nil
}

// sessionPayload is the wire shape of a token grant response.
type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
}

type userPayload struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at"`
	CreatedAt        *time.Time     `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
	Code             any    `json:"code"`
}

func (e errorPayload) text() string {
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func (p *userPayload) toAuthUser() (*auth.AuthUser, error) {
	if p == nil {
		return nil, nil
	}

	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "backend returned a malformed user id")
	}

	return &auth.AuthUser{
		ID:               id,
		Email:            p.Email,
		EmailConfirmedAt: p.EmailConfirmedAt,
		LastSignInAt:     p.LastSignInAt,
		CreatedAt:        p.CreatedAt,
		Metadata:         p.UserMetadata,
	}, nil
}

func (p *sessionPayload) toSession() (*auth.AuthSession, error) {
	user, err := p.User.toAuthUser()
	if err != nil {
		return nil, err
	}

	session := &auth.AuthSession{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         user,
	}

	if p.ExpiresAt > 0 {
		expires := time.Unix(p.ExpiresAt, 0)
		session.ExpiresAt = &expires
	} else if p.ExpiresIn > 0 {
		expires := time.Now().Add(time.Duration(p.ExpiresIn) * time.Second)
		session.ExpiresAt = &expires
	}

	return session, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, accessToken string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.authURL()+endpoint, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not build request")
	}

	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if accessToken == "" {
		accessToken = c.config.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := c.http.Do(req)
	if err != nil {
		// Keep the transport error intact so callers can classify it as
		// a network failure.
		return err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode >= 400 {
		return c.apiError(res.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not decode backend response")
		}
	}

	return nil
}

func (c *Client) apiError(status int, payload []byte) error {
	var parsed errorPayload
	_ = json.Unmarshal(payload, &parsed)

	text := strings.ToLower(parsed.text())

	switch {
	case strings.Contains(text, "invalid login credentials"),
		parsed.Error == "invalid_grant" && !strings.Contains(text, "refresh"):
		clone := auth.ErrInvalidCredentials.Clone()
		clone.Source = fmt.Errorf("backend rejected credentials: %s", parsed.text())
		return clone
	case strings.Contains(text, "refresh"):
		return goerrors.New("invalid refresh token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": status})
	}

	c.logger.Debug("backend error: status=%d body=%s", status, parsed.text())

	category := goerrors.CategoryExternal
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		category = goerrors.CategoryAuth
	}

	message := parsed.text()
	if message == "" {
		message = fmt.Sprintf("backend request failed with status %d", status)
	}

	return goerrors.New(message, category).WithMetadata(map[string]any{
		"status": status,
	})
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.AuthSession, error) {
	payload := &sessionPayload{}
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "", payload)
	if err != nil {
		return nil, err
	}
	return payload.toSession()
}

// SignUp registers a new identity. Metadata lands in user_metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.AuthSession, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if metadata != nil {
		body["data"] = metadata
	}

	payload := &sessionPayload{}
	if err := c.do(ctx, http.MethodPost, "/signup", body, "", payload); err != nil {
		return nil, err
	}
	return payload.toSession()
}

// SignOut revokes the session server side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
}

// UpdateUser patches the authenticated user.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs auth.UserAttributes) (*auth.AuthUser, error) {
	body := map[string]any{}
	if attrs.Password != "" {
		body["password"] = attrs.Password
	}
	if attrs.Email != "" {
		body["email"] = attrs.Email
	}
	if attrs.Metadata != nil {
		body["data"] = attrs.Metadata
	}

	payload := &userPayload{}
	if err := c.do(ctx, http.MethodPut, "/user", body, accessToken, payload); err != nil {
		return nil, err
	}
	return payload.toAuthUser()
}

// ResetPasswordForEmail triggers the recovery email flow.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	endpoint := "/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, endpoint, map[string]string{"email": email}, "", nil)
}

// GetUser fetches the user owning the access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*auth.AuthUser, error) {
	payload := &userPayload{}
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, payload); err != nil {
		return nil, err
	}
	return payload.toAuthUser()
}

// RefreshSession rotates the token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*auth.AuthSession, error) {
	payload := &sessionPayload{}
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	}, "", payload)
	if err != nil {
		return nil, err
	}
	return payload.toSession()
}

// VerifyOTP redeems a one-time token (invite, recovery, signup confirm).
func (c *Client) VerifyOTP(ctx context.Context, params auth.VerifyOTPParams) (*auth.AuthSession, error) {
	payload := &sessionPayload{}
	err := c.do(ctx, http.MethodPost, "/verify", map[string]string{
		"type":  params.Type,
		"token": params.Token,
		"email": params.Email,
	}, "", payload)
	if err != nil {
		return nil, err
	}
	return payload.toSession()
}

// SetSession adopts an externally obtained token pair by resolving its user.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*auth.AuthSession, error) {
	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &auth.AuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// SessionFromFragment resolves a session out of a redirect URL fragment, the
// shape activation links arrive in.
func (c *Client) SessionFromFragment(ctx context.Context, fragment string) (*auth.AuthSession, error) {
	accessToken, refreshToken, err := auth.ParseFragmentTokens(fragment)
	if err != nil {
		return nil, err
	}
	return c.SetSession(ctx, accessToken, refreshToken)
}
