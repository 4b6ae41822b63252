package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"taskflow/session"
)

const refreshPath = "/token/refresh/"

// Options configures a Client. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	// BaseURL of the REST API, default http://localhost:8000/api.
	BaseURL string
	// Timeout of one HTTP attempt, default 15s.
	Timeout time.Duration
	// MaxRetries for 5xx answers, default 3. Negative disables retries.
	MaxRetries int
	// RetryBaseDelay is multiplied by 2^n before retry n (n from 1), default
	// 1s, which waits 2s, 4s and 8s.
	RetryBaseDelay time.Duration
	// BreakerFailures consecutive failed requests open the breaker, default 5.
	// A request fails once its retries are exhausted.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open, default 10s.
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *log.Logger
	// OnSessionExpired runs after an unrecoverable 401 cleared the session.
	OnSessionExpired func()
}

// Client issues authenticated requests against the TaskFlow REST API. It
// attaches the bearer token, refreshes it once on a 401 and retries 5xx
// answers with exponential backoff.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	store      session.Store
	logger     *log.Logger
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryBase  time.Duration
	onExpired  func()
	sleep      func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	sess   session.Session
	loaded bool

	refreshMu sync.Mutex

	Auth     *AuthService
	Projects *ProjectService
	Tasks    *TaskService
	Users    *UserService
	Events   *EventService
}

// New creates a Client that persists tokens in store.
func New(opts Options, store session.Store) (*Client, error) {
	if store == nil {
		store = session.NewMemoryStore()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8000/api"
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	c := &Client{
		baseURL:    base,
		http:       httpClient,
		store:      store,
		logger:     logger,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBaseDelay,
		onExpired:  opts.OnSessionExpired,
		sleep:      sleepContext,
	}
	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "taskflow-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !backendFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	c.Auth = &AuthService{c: c}
	c.Projects = &ProjectService{c: c}
	c.Tasks = &TaskService{c: c}
	c.Users = &UserService{c: c}
	c.Events = &EventService{c: c}
	return c, nil
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Session returns the current session, loading it from the store on first use.
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		s, err := c.store.Load(ctx)
		switch {
		case errors.Is(err, session.ErrNoSession):
			s = session.Session{}
		case err != nil:
			return session.Session{}, err
		}
		c.sess = s
		c.loaded = true
	}
	return c.sess, nil
}

// SetSession replaces the current session and persists it.
func (c *Client) SetSession(ctx context.Context, s session.Session) error {
	c.mu.Lock()
	c.sess = s
	c.loaded = true
	c.mu.Unlock()
	return c.store.Save(ctx, s)
}

// ClearSession forgets the tokens locally and in the store.
func (c *Client) ClearSession(ctx context.Context) error {
	c.mu.Lock()
	c.sess = session.Session{}
	c.loaded = true
	c.mu.Unlock()
	return c.store.Clear(ctx)
}

type request struct {
	method string
	path   string
	// rawURL overrides path, used to follow pagination links.
	rawURL string
	query  url.Values
	body   any
	// noRefresh disables the 401 refresh for endpoints that issue tokens.
	noRefresh bool
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs req and decodes a 2xx body into out when out is not nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	path := req.path
	if req.rawURL != "" {
		if u, err := url.Parse(req.rawURL); err == nil {
			path = strings.TrimPrefix(u.Path, c.baseURL.Path)
		}
	}
	metrics, ctx := newRequestMetrics(ctx, c.logger, req.method, path)
	result, err := c.breaker.Execute(func() (any, error) {
		return c.sendWithRecovery(ctx, req, metrics)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.SetErrorStage("breaker")
		err = ErrBackendUnavailable
	}
	resp, _ := result.(*response)
	status := 0
	if resp != nil {
		status = resp.status
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	metrics.Log(status, err)
	return resp, err
}

func (c *Client) sendWithRecovery(ctx context.Context, req request, metrics *requestMetrics) (*response, error) {
	body, err := encodeBody(req.body)
	if err != nil {
		metrics.SetErrorStage("encode")
		return nil, err
	}
	requestID := uuid.NewString()
	refreshed := false
	retries := 0
	for {
		sess, err := c.Session(ctx)
		if err != nil {
			metrics.SetErrorStage("session")
			return nil, err
		}
		metrics.ObserveAttempt()
		resp, err := c.attempt(ctx, req, body, sess.Access, requestID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.SetErrorStage("canceled")
				return nil, ctxErr
			}
			metrics.SetErrorStage("transport")
			return nil, fmt.Errorf("%w (%v)", ErrNetwork, err)
		}

		switch {
		case resp.status == http.StatusUnauthorized && !req.noRefresh && sess.Refresh != "":
			if refreshed {
				metrics.SetErrorStage("auth")
				c.expire(ctx, "unauthorized after token refresh")
				return resp, ErrSessionExpired
			}
			if err := c.refreshAccess(ctx, sess.Access); err != nil {
				metrics.SetErrorStage("refresh")
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.expire(ctx, err.Error())
				return resp, fmt.Errorf("%w: %v", ErrSessionExpired, err)
			}
			refreshed = true
			metrics.SetRefreshed()
			continue
		case resp.status == http.StatusUnauthorized && !req.noRefresh && sess.Access != "":
			metrics.SetErrorStage("auth")
			c.expire(ctx, "unauthorized without refresh token")
			return resp, ErrSessionExpired
		case resp.status >= http.StatusInternalServerError:
			if retries < c.maxRetries {
				retries++
				delay := c.retryBase * time.Duration(1<<retries)
				c.logger.WithFields(log.Fields{
					"method":     req.method,
					"path":       req.path,
					"status":     resp.status,
					"retry":      retries,
					"delay_ms":   durationToMillis(delay),
					"request_id": requestID,
				}).Warn("retrying request after server error")
				if err := c.sleep(ctx, delay); err != nil {
					metrics.SetErrorStage("canceled")
					return nil, err
				}
				continue
			}
			metrics.SetErrorStage("server")
			return resp, parseAPIError(resp.status, resp.body)
		case resp.status >= http.StatusBadRequest:
			metrics.SetErrorStage("client")
			return resp, parseAPIError(resp.status, resp.body)
		}
		return resp, nil
	}
}

// attempt sends one HTTP request. Only transport failures are errors, any
// status code is returned in the response.
func (c *Client) attempt(ctx context.Context, req request, body []byte, token, requestID string) (*response, error) {
	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, rdr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// backendFailure reports whether err counts against the circuit breaker:
// the backend was unreachable or still answered 5xx after all retries.
func backendFailure(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError
}

func (c *Client) resolve(req request) (string, error) {
	if req.rawURL != "" {
		u, err := url.Parse(req.rawURL)
		if err != nil {
			return "", err
		}
		if u.Host != c.baseURL.Host || u.Scheme != c.baseURL.Scheme {
			return "", fmt.Errorf("refusing to follow link to foreign host %s", u.Host)
		}
		return u.String(), nil
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	return u.String(), nil
}

// refreshAccess exchanges the refresh token for a new access token. Callers
// that lost the race to a concurrent refresh reuse its result.
func (c *Client) refreshAccess(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	sess, err := c.Session(ctx)
	if err != nil {
		return err
	}
	if sess.Access != "" && sess.Access != staleAccess {
		return nil
	}
	if sess.Refresh == "" {
		return errors.New("no refresh token")
	}

	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	req := request{method: http.MethodPost, path: refreshPath, body: map[string]string{"refresh": sess.Refresh}, noRefresh: true}
	body, err := encodeBody(req.body)
	if err != nil {
		return err
	}
	resp, err := c.attempt(ctx, req, body, "", uuid.NewString())
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("refresh token: %w", parseAPIError(resp.status, resp.body))
	}
	if err := sonic.Unmarshal(resp.body, &out); err != nil || out.Access == "" {
		return errors.New("refresh token: response has no access token")
	}
	sess.Access = out.Access
	if out.Refresh != "" {
		sess.Refresh = out.Refresh
	}
	if err := c.SetSession(ctx, sess); err != nil {
		c.logger.WithError(err).Warn("persist refreshed session")
	}
	c.logger.Debug("access token refreshed")
	return nil
}

func (c *Client) expire(ctx context.Context, reason string) {
	c.logger.WithField("reason", reason).Warn("session expired, clearing stored credentials")
	if err := c.ClearSession(context.WithoutCancel(ctx)); err != nil {
		c.logger.WithError(err).Error("clear session")
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
