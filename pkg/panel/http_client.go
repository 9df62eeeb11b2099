package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HTTPConfig configures a single 3x-ui panel connection.
type HTTPConfig struct {
	PanelID   string        `env:"PANEL_ID,required"`
	BaseURL   string        `env:"PANEL_BASE_URL,required"`
	Username  string        `env:"PANEL_USERNAME,required"`
	Password  string        `env:"PANEL_PASSWORD,required"`
	InboundID int           `env:"PANEL_INBOUND_ID" envDefault:"1"`
	Timeout   time.Duration `env:"PANEL_TIMEOUT" envDefault:"10s"`
}

// HTTPClient implements Client against a single 3x-ui panel instance.
// The panel uses session-cookie authentication; the client logs in lazily and
// re-authenticates once when a session expires mid-call.
type HTTPClient struct {
	panelID   string
	baseURL   string
	username  string
	password  string
	inboundID int
	http      *http.Client
	log       *slog.Logger

	mu       sync.Mutex // serializes login attempts
	loggedIn bool
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPLogger sets the logger for panel call diagnostics.
func WithHTTPLogger(log *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHTTPTransport overrides the underlying http.Client transport, used in
// tests and for custom TLS settings.
func WithHTTPTransport(rt http.RoundTripper) HTTPOption {
	return func(c *HTTPClient) {
		if rt != nil {
			c.http.Transport = rt
		}
	}
}

// NewHTTPClient creates a panel client from config. It does not dial the
// panel; the first call triggers login.
func NewHTTPClient(cfg HTTPConfig, opts ...HTTPOption) (*HTTPClient, error) {
	if cfg.PanelID == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: panel ID and base URL are required", ErrInvalidResponse)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &HTTPClient{
		panelID:   cfg.PanelID,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		inboundID: cfg.InboundID,
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PanelID returns the pool identifier of this panel.
func (c *HTTPClient) PanelID() string {
	return c.panelID
}

// envelope is the 3x-ui response wrapper shared by all API endpoints.
type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// wireClient is the 3x-ui client credential object. Traffic is carried in
// bytes and expiry as Unix milliseconds.
type wireClient struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Enable     bool      `json:"enable"`
	ExpiryTime int64     `json:"expiryTime"`
	Flow       string    `json:"flow,omitempty"`
	LimitIP    int64     `json:"limitIp"`
	SubID      string    `json:"subId,omitempty"`
	TotalGB    int64     `json:"totalGB"`
}

// clientTraffic is the 3x-ui traffic record returned by query endpoints.
type clientTraffic struct {
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	ExpiryTime int64  `json:"expiryTime"`
}

// inboundDetail is the subset of the 3x-ui inbound object the client reads
// back. Settings is a JSON document nested inside the JSON response.
type inboundDetail struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

func specToWire(spec CredentialSpec) wireClient {
	total := spec.TrafficBytes
	if total < 0 {
		total = 0 // 3x-ui encodes unlimited traffic as zero
	}
	limitIP := spec.DeviceLimit
	if limitIP < 0 {
		limitIP = 0 // and unlimited devices likewise
	}
	return wireClient{
		ID:         spec.CredentialID,
		Email:      spec.Email,
		Enable:     spec.Enabled,
		ExpiryTime: spec.ExpiresAt.UnixMilli(),
		Flow:       spec.Flow,
		LimitIP:    limitIP,
		SubID:      spec.SubID,
		TotalGB:    total,
	}
}

func (c *HTTPClient) CreateOrUpdateClient(ctx context.Context, panelID string, spec CredentialSpec) (CredentialRef, error) {
	if panelID != "" && panelID != c.panelID {
		return CredentialRef{}, Permanent(fmt.Errorf("%w: %s", ErrPanelNotFound, panelID))
	}

	ref := CredentialRef{PanelID: c.panelID, CredentialID: spec.CredentialID}

	// The panel keys clients by id; converge by updating when it already
	// exists so a replayed create never produces a duplicate credential.
	_, err := c.QueryClient(ctx, ref)
	switch {
	case err == nil:
		if err := c.updateClient(ctx, specToWire(spec)); err != nil {
			return CredentialRef{}, err
		}
		return ref, nil
	case IsPermanent(err) && !isNotFound(err):
		return CredentialRef{}, err
	case isNotFound(err):
		if err := c.addClient(ctx, specToWire(spec)); err != nil {
			return CredentialRef{}, err
		}
		return ref, nil
	default:
		return CredentialRef{}, err
	}
}

// SuspendClient disables the credential in place. The stored client object is
// read back from the inbound settings first, so the update keeps flow, device
// limit and subscription ID exactly as provisioned; the traffic endpoints do
// not carry those fields.
func (c *HTTPClient) SuspendClient(ctx context.Context, ref CredentialRef) error {
	wc, err := c.loadWireClient(ctx, ref.CredentialID)
	if err != nil {
		if isNotFound(err) {
			return Permanent(fmt.Errorf("suspend %s: %w", ref.CredentialID, ErrClientNotFound))
		}
		return err
	}
	if !wc.Enable {
		return nil // already disabled, suspension converged
	}

	wc.Enable = false
	return c.updateClient(ctx, wc)
}

func (c *HTTPClient) RemoveClient(ctx context.Context, ref CredentialRef) error {
	path := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", c.inboundID, ref.CredentialID)
	err := c.post(ctx, path, nil, nil)
	if err != nil && isNotFound(err) {
		return nil // already gone, removal converged
	}
	return err
}

func (c *HTTPClient) QueryClient(ctx context.Context, ref CredentialRef) (*ClientState, error) {
	path := "/panel/api/inbounds/getClientTrafficsById/" + ref.CredentialID.String()

	var records []clientTraffic
	if err := c.get(ctx, path, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, Permanent(ErrClientNotFound)
	}

	rec := records[0]
	return &ClientState{
		Ref:        CredentialRef{PanelID: c.panelID, CredentialID: ref.CredentialID},
		Email:      rec.Email,
		Enabled:    rec.Enable,
		UpBytes:    rec.Up,
		DownBytes:  rec.Down,
		TotalBytes: rec.Total,
		ExpiresAt:  time.UnixMilli(rec.ExpiryTime).UTC(),
	}, nil
}

func (c *HTTPClient) addClient(ctx context.Context, wc wireClient) error {
	settings, err := json.Marshal(map[string][]wireClient{"clients": {wc}})
	if err != nil {
		return Permanent(fmt.Errorf("marshal client settings: %w", err))
	}
	body := map[string]any{
		"id":       c.inboundID,
		"settings": string(settings),
	}
	return c.post(ctx, "/panel/api/inbounds/addClient", body, nil)
}

func (c *HTTPClient) updateClient(ctx context.Context, wc wireClient) error {
	settings, err := json.Marshal(map[string][]wireClient{"clients": {wc}})
	if err != nil {
		return Permanent(fmt.Errorf("marshal client settings: %w", err))
	}
	body := map[string]any{
		"id":       c.inboundID,
		"settings": string(settings),
	}
	return c.post(ctx, "/panel/api/inbounds/updateClient/"+wc.ID.String(), body, nil)
}

// loadWireClient returns the stored client object for the credential from the
// inbound's settings document.
func (c *HTTPClient) loadWireClient(ctx context.Context, credentialID uuid.UUID) (wireClient, error) {
	var detail inboundDetail
	path := fmt.Sprintf("/panel/api/inbounds/get/%d", c.inboundID)
	if err := c.get(ctx, path, &detail); err != nil {
		return wireClient{}, err
	}

	var settings struct {
		Clients []wireClient `json:"clients"`
	}
	if err := json.Unmarshal([]byte(detail.Settings), &settings); err != nil {
		return wireClient{}, Permanent(fmt.Errorf("%w: inbound settings: %v", ErrInvalidResponse, err))
	}
	for _, wc := range settings.Clients {
		if wc.ID == credentialID {
			return wc, nil
		}
	}
	return wireClient{}, Permanent(ErrClientNotFound)
}

func (c *HTTPClient) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Retryable(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if !env.Success {
		return Permanent(fmt.Errorf("%w: %s", ErrLoginFailed, env.Msg))
	}

	c.loggedIn = true
	c.log.Debug("panel login succeeded", slog.String("panel_id", c.panelID))
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

// call performs an authenticated panel API request, logging in on demand and
// retrying exactly once after a session rejection.
func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	if err := c.login(ctx); err != nil {
		return err
	}

	err := c.doRequest(ctx, method, path, body, out)
	if err != nil && isSessionExpired(err) {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()

		if err := c.login(ctx); err != nil {
			return err
		}
		return c.doRequest(ctx, method, path, body, out)
	}
	return err
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Covers timeouts and connection failures; the caller must never
		// interpret these as success because the panel may have applied
		// the mutation before the response was lost.
		return Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &sessionExpiredError{}
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Retryable(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if !env.Success {
		if strings.Contains(strings.ToLower(env.Msg), "not found") {
			return Permanent(fmt.Errorf("%w: %s", ErrClientNotFound, env.Msg))
		}
		return Permanent(fmt.Errorf("%w: %s", ErrInvalidResponse, env.Msg))
	}

	if out != nil && len(env.Obj) > 0 && string(env.Obj) != "null" {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			return Retryable(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
		}
	}
	return nil
}

type sessionExpiredError struct{}

func (e *sessionExpiredError) Error() string {
	return "panel session expired"
}

func isSessionExpired(err error) bool {
	var se *sessionExpiredError
	return errors.As(err, &se)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return Retryable(fmt.Errorf("panel returned status %d", status))
	default:
		return Permanent(fmt.Errorf("panel returned status %d", status))
	}
}
