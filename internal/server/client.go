package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/credentials"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultRetryMax        = 3
	DefaultRetryWait       = 200 * time.Millisecond
	DefaultMaxDownloadSize = 256 << 20
)

// HeaderRequestID carries a unique id per logical request so server logs can
// be correlated with ours across retries.
const HeaderRequestID = "X-Remote-Request-Id"

// Options configures a Client.
type Options struct {
	// Timeout bounds a single attempt. Exceeding it counts as a transient failure.
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// RetryWait is the first backoff interval; each retry doubles it.
	RetryWait time.Duration
	// MaxDownloadSize caps the bytes read from one response.
	MaxDownloadSize int64

	// HTTPClient is the underlying client, for custom TLS settings.
	HTTPClient *http.Client

	// OnAttempt is called before every attempt, numbered from 1.
	OnAttempt func(req *http.Request, attempt int)

	Logger logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	} else if o.RetryMax == 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.RetryWait <= 0 {
		o.RetryWait = DefaultRetryWait
	}
	if o.MaxDownloadSize <= 0 {
		o.MaxDownloadSize = DefaultMaxDownloadSize
	}
	return o
}

// Client talks to the server endpoints of one organization.
type Client struct {
	cfg      *configs.ClientConfig
	opts     Options
	http     *retryablehttp.Client
	attempts atomic.Int64
}

// scheduledBackoff waits RetryWaitMin doubled per attempt. Retry-After from
// the server is ignored so a busy server cannot stretch the schedule.
func scheduledBackoff(min, max time.Duration, attempt int, _ *http.Response) time.Duration {
	return retryablehttp.DefaultBackoff(min, max, attempt, nil)
}

// NewClient configures the retrying HTTP client for cfg's server.
// A negative Options.RetryMax disables retries.
func NewClient(cfg *configs.ClientConfig, opts Options) *Client {
	opts = opts.withDefaults()

	httpClient := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		base := *opts.HTTPClient
		httpClient.HTTPClient = &base
	}
	httpClient.HTTPClient.Timeout = opts.Timeout
	httpClient.RetryMax = opts.RetryMax
	httpClient.RetryWaitMin = opts.RetryWait
	httpClient.RetryWaitMax = opts.RetryWait << opts.RetryMax
	httpClient.Backoff = scheduledBackoff
	httpClient.Logger = opts.Logger.Leveled()
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{cfg: cfg, opts: opts, http: httpClient}
	httpClient.CheckRetry = c.checkRetry
	httpClient.PrepareRetry = resign
	httpClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, retry int) {
		c.attempts.Add(1)
		if opts.OnAttempt != nil {
			opts.OnAttempt(req, retry+1)
		}
	}
	return c
}

// Attempts returns the number of HTTP attempts made, retries included.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// checkRetry retries transport errors, timeouts and 5xx responses. 4xx
// responses and cancelled contexts end the request.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}
	return false, nil
}

type signingContextKey struct{}

type signingInfo struct {
	cred *credentials.Credential
	body []byte
}

// resign refreshes the signature of a retried request.
func resign(req *http.Request) error {
	info, ok := req.Context().Value(signingContextKey{}).(signingInfo)
	if !ok {
		return nil
	}
	return info.cred.Sign(req, info.body)
}

// ListCatalog returns the newest version of every cookbook in the organization.
func (c *Client) ListCatalog(ctx context.Context, cred *credentials.Credential) ([]CatalogEntry, error) {
	data, err := c.do(ctx, cred, http.MethodGet, c.cfg.CatalogURL()+"?num_versions=all", nil)
	if err != nil {
		return nil, fmt.Errorf("listing cookbooks: %w", err)
	}

	var catalog catalogResponse
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: decoding cookbook catalog: %w", kerrors.ErrNetwork, err)
	}
	return catalog.entries(), nil
}

// Fetch downloads the content of one cookbook version.
func (c *Client) Fetch(ctx context.Context, cred *credentials.Credential, name, version string) ([]byte, error) {
	data, err := c.do(ctx, cred, http.MethodGet, c.cfg.CookbookURL(name, version), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w", name, version, err)
	}
	return data, nil
}

// RegisterClient creates the client name on the server using the validator
// credential and returns the private key the server issued for it.
func (c *Client) RegisterClient(ctx context.Context, validator *credentials.Credential, name string) ([]byte, error) {
	body, err := json.Marshal(registerRequest{Name: name, CreateKey: true})
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, validator, http.MethodPost, c.cfg.ClientsURL(), body)
	if err != nil {
		if errors.Is(err, kerrors.ErrNotFound) {
			// A refused registration is a credential problem, not a missing artifact.
			return nil, fmt.Errorf("registering client %s: %w: %w", name, kerrors.ErrAuth, err)
		}
		return nil, fmt.Errorf("registering client %s: %w", name, err)
	}

	var resp registerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding registration response: %w", kerrors.ErrAuth, err)
	}
	key := resp.key()
	if key == "" {
		return nil, fmt.Errorf("%w: server did not issue a private key for %s", kerrors.ErrAuth, name)
	}
	return []byte(key), nil
}

func (c *Client) do(ctx context.Context, cred *credentials.Credential, method, url string, body []byte) ([]byte, error) {
	ctx = context.WithValue(ctx, signingContextKey{}, signingInfo{cred: cred, body: body})

	var reqBody interface{}
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if err := cred.Sign(req.Request, body); err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrAuth, err)
	}

	c.opts.Logger.Debugf("%s %s", method, url)
	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			drain(resp.Body)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", kerrors.ErrNetwork, method, url, ctxErr)
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: %s %s: %s", kerrors.ErrNetwork, method, url, resp.Status)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", kerrors.ErrNetwork, method, url, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		drain(resp.Body)
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	// Headers can lie, so read up to the limit and fail if anything remains.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", kerrors.ErrNetwork, url, err)
	}
	if n, _ := io.Copy(io.Discard, resp.Body); n > 0 {
		return nil, fmt.Errorf("%w: response from %s exceeds the max download size of %d bytes", kerrors.ErrNetwork, url, c.opts.MaxDownloadSize)
	}
	return data, nil
}

func statusError(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s%s", kerrors.ErrAuth, resp.Status, serverMessage(resp))
	case code < 500:
		return fmt.Errorf("%w: %s%s", kerrors.ErrNotFound, resp.Status, serverMessage(resp))
	default:
		return fmt.Errorf("%w: %s", kerrors.ErrNetwork, resp.Status)
	}
}

// serverMessage extracts the {"error": ...} payload the server returns on failure.
func serverMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &payload) != nil || len(payload.Error) == 0 {
		return ""
	}
	var msgs []string
	if json.Unmarshal(payload.Error, &msgs) == nil && len(msgs) > 0 {
		return ": " + msgs[0]
	}
	var msg string
	if json.Unmarshal(payload.Error, &msg) == nil && msg != "" {
		return ": " + msg
	}
	return ": " + string(bytes.TrimSpace(payload.Error))
}

// drain discards the rest of body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	body.Close()
}
