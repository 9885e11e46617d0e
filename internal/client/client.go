// Package client is a REST client for the cabinet admin API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/resty.v1"

	"cabinet-admin/internal/auth"
	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/form"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
	"cabinet-admin/internal/store"
)

var (
	_ form.RoleAPI   = (*Client)(nil)
	_ form.PolicyAPI = (*Client)(nil)
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []engine.ErrorDetail
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("cabinet api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("cabinet api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to one cabinet server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *resty.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL, token string) *Client {
	cl := &http.Client{Timeout: 30 * time.Second}
	rc := resty.NewWithClient(cl)
	if u, err := url.Parse(baseURL); err != nil {
		log.Errorf("Can't parse cabinet url: %v", err)
	} else if u.Hostname() != "" {
		rc.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(u.Hostname()))
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc, token: token}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) makeRequest(ctx context.Context) *resty.Request {
	req := c.http.R()
	req.SetContext(ctx)
	req.SetHeader("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.SetHeader("Authorization", "Bearer "+tok)
	}
	return req
}

// do sends the request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.makeRequest(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}
	resp, err := req.Execute(method, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	var env engine.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error != nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	} else if len(resp.Body()) > 0 {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
	}
	return apiErr
}

// Login exchanges credentials for a token pair and keeps the access token
// for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	var out struct {
		Data auth.TokenPair `json:"data"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/cabinet/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Data.AccessToken)
	return &out.Data, nil
}

func (c *Client) GetPermissionRegistry(ctx context.Context) ([]metadata.PermissionSection, error) {
	var out []metadata.PermissionSection
	if err := c.do(ctx, http.MethodGet, "/cabinet/admin/permission-registry", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPresets(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	if err := c.do(ctx, http.MethodGet, "/cabinet/admin/roles/presets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Preview is the matrix rendering of a permission list.
type Preview struct {
	Rows    []permission.Row `json:"rows"`
	Unknown []string         `json:"unknown"`
}

func (c *Client) PreviewMatrix(ctx context.Context, perms []string) (*Preview, error) {
	var out Preview
	body := map[string][]string{"permissions": perms}
	if err := c.do(ctx, http.MethodPost, "/cabinet/admin/roles/preview", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRoles(ctx context.Context) ([]metadata.Role, error) {
	var out []metadata.Role
	if err := c.do(ctx, http.MethodGet, "/cabinet/admin/roles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRole(ctx context.Context, id int64) (*metadata.Role, error) {
	var out metadata.Role
	if err := c.do(ctx, http.MethodGet, rolePath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRole(ctx context.Context, payload metadata.RolePayload) (*metadata.Role, error) {
	var out metadata.Role
	if err := c.do(ctx, http.MethodPost, "/cabinet/admin/roles", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRole(ctx context.Context, id int64, payload metadata.RolePayload) (*metadata.Role, error) {
	var out metadata.Role
	if err := c.do(ctx, http.MethodPut, rolePath(id), payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRole(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, rolePath(id), nil, nil)
}

func (c *Client) GetPolicies(ctx context.Context) ([]metadata.AccessPolicy, error) {
	var out []metadata.AccessPolicy
	if err := c.do(ctx, http.MethodGet, "/cabinet/admin/policies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPolicy(ctx context.Context, id int64) (*metadata.AccessPolicy, error) {
	var out metadata.AccessPolicy
	if err := c.do(ctx, http.MethodGet, policyPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePolicy(ctx context.Context, payload metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	var out metadata.AccessPolicy
	if err := c.do(ctx, http.MethodPost, "/cabinet/admin/policies", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePolicy(ctx context.Context, id int64, payload metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	var out metadata.AccessPolicy
	if err := c.do(ctx, http.MethodPut, policyPath(id), payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePolicy(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, policyPath(id), nil, nil)
}

// EvaluateRequest asks the server for a dry-run access decision. RoleIDs,
// when set, replace the caller's roles.
type EvaluateRequest struct {
	Section string         `json:"section"`
	Action  string         `json:"action"`
	IP      string         `json:"ip,omitempty"`
	At      *time.Time     `json:"at,omitempty"`
	RoleIDs []int64        `json:"role_ids,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

func (c *Client) Evaluate(ctx context.Context, r EvaluateRequest) (*engine.Decision, error) {
	var out engine.Decision
	if err := c.do(ctx, http.MethodPost, "/cabinet/admin/policies/evaluate", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditEvent, error) {
	q := url.Values{}
	if f.Actor != "" {
		q.Set("actor", f.Actor)
	}
	if f.Action != "" {
		q.Set("action", f.Action)
	}
	if f.Entity != "" {
		q.Set("entity", f.Entity)
	}
	if f.Limit > 0 {
		q.Set("per_page", strconv.Itoa(f.Limit))
	}
	path := "/cabinet/admin/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Data []store.AuditEvent `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func rolePath(id int64) string {
	return "/cabinet/admin/roles/" + strconv.FormatInt(id, 10)
}

func policyPath(id int64) string {
	return "/cabinet/admin/policies/" + strconv.FormatInt(id, 10)
}
