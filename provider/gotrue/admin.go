package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eadcore/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AdminClient calls the privileged serverless functions with the service
// role key. It never ships to browsers or untrusted processes.
type AdminClient struct {
	config Config
	http   *http.Client
	logger auth.Logger
}

var _ auth.RemoteFunctions = (*AdminClient)(nil)

// NewAdminClient creates the privileged function client.
func NewAdminClient(cfg Config) (*AdminClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("gotrue: service role key is required for admin calls")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger
	}

	return &AdminClient{
		config: cfg,
		http:   cfg.httpClient(),
		logger: logger,
	}, nil
}

func (a *AdminClient) post(ctx context.Context, fullURL string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(encoded))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not build request")
	}

	req.Header.Set("apikey", a.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+a.config.ServiceRoleKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode >= 400 {
		var parsed errorPayload
		_ = json.Unmarshal(payload, &parsed)
		message := parsed.text()
		if message == "" {
			message = fmt.Sprintf("function call failed with status %d", res.StatusCode)
		}
		a.logger.Warn("privileged function failure: status=%d message=%s", res.StatusCode, message)
		return goerrors.New(message, goerrors.CategoryExternal).WithMetadata(map[string]any{
			"status": res.StatusCode,
		})
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not decode function response")
		}
	}

	return nil
}

// ProvisionCompanyAuthUser creates (or links) an auth identity for an
// existing company record. The function runs with elevated rights and stamps
// the company role into user metadata.
func (a *AdminClient) ProvisionCompanyAuthUser(ctx context.Context, companyID uuid.UUID, email, password string) (*auth.AuthUser, error) {
	out := struct {
		User *userPayload `json:"user"`
	}{}

	err := a.post(ctx, a.config.functionsURL()+"/provision-company-user", map[string]any{
		"company_id": companyID.String(),
		"email":      email,
		"password":   password,
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.User == nil {
		return nil, goerrors.New("provisioning returned no user", goerrors.CategoryExternal)
	}
	return out.User.toAuthUser()
}

// CheckSubscription asks the billing provider for the company's current
// subscription state.
func (a *AdminClient) CheckSubscription(ctx context.Context, companyID uuid.UUID) (*auth.BillingStatus, error) {
	out := struct {
		Status string     `json:"status"`
		EndsAt *time.Time `json:"ends_at"`
	}{}

	err := a.post(ctx, a.config.functionsURL()+"/check-subscription", map[string]any{
		"company_id": companyID.String(),
	}, &out)
	if err != nil {
		return nil, err
	}

	return &auth.BillingStatus{
		Status: out.Status,
		EndsAt: out.EndsAt,
	}, nil
}

// CreateCustomerPortal returns a billing portal URL for the company.
func (a *AdminClient) CreateCustomerPortal(ctx context.Context, companyID uuid.UUID) (string, error) {
	out := struct {
		URL string `json:"url"`
	}{}

	err := a.post(ctx, a.config.functionsURL()+"/create-customer-portal", map[string]any{
		"company_id": companyID.String(),
	}, &out)
	if err != nil {
		return "", err
	}

	if out.URL == "" {
		return "", goerrors.New("portal function returned no url", goerrors.CategoryExternal)
	}
	return out.URL, nil
}
