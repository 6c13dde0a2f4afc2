package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

var tracer = otel.Tracer("apptcal.internal.api")

var (
	// ErrFetch marks a failed calendar_data read.
	ErrFetch = errors.New("api: calendar fetch failed")
	// ErrToken marks a failed anti-forgery token request.
	ErrToken = errors.New("api: token request failed")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("api: %s %s: status %d", e.Method, e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

const (
	DefaultTokenPath   = "/csrf-token/"
	DefaultTokenHeader = "X-CSRFToken"
	defaultTimeout     = 15 * time.Second
	maxErrorBody       = 512
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://clinic.example.com/api".
	BaseURL string
	// TokenPath is the anti-forgery token endpoint relative to BaseURL.
	TokenPath string
	// TokenHeader carries the token on mutating requests.
	TokenHeader string
	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	// Location reads zone-less times from the API.
	Location *time.Location
}

// Client talks to the appointment REST API.
type Client struct {
	base        string
	tokenPath   string
	tokenHeader string
	client      *http.Client
	loc         *time.Location

	// Conditional GET state for calendar_data.
	cacheMu  sync.Mutex
	etag     string
	lastBody []byte
}

// NewClient validates opts and returns a Client. The default HTTP client
// keeps a cookie jar so session and CSRF cookies round-trip.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base URL is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("api: base URL %q must be http(s)", base)
	}
	if opts.TokenPath == "" {
		opts.TokenPath = DefaultTokenPath
	}
	if !strings.HasPrefix(opts.TokenPath, "/") {
		opts.TokenPath = "/" + opts.TokenPath
	}
	if opts.TokenHeader == "" {
		opts.TokenHeader = DefaultTokenHeader
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Timeout: timeout, Jar: jar}
	}

	return &Client{
		base:        base,
		tokenPath:   opts.TokenPath,
		tokenHeader: opts.TokenHeader,
		client:      hc,
		loc:         opts.Location,
	}, nil
}

// Location is the zone used for zone-less API times.
func (c *Client) Location() *time.Location { return c.loc }

// CalendarData reads the calendar_data aggregate. The response is
// authoritative; a 304 reuses the last body the server confirmed.
func (c *Client) CalendarData(ctx context.Context) (CalendarData, error) {
	ctx, span := tracer.Start(ctx, "api.calendar_data")
	defer span.End()

	const path = "/appointments/calendar_data"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return CalendarData{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	c.cacheMu.Lock()
	etag, cached := c.etag, c.lastBody
	c.cacheMu.Unlock()
	if etag != "" && len(cached) > 0 {
		req.Header.Set("If-None-Match", etag)
	}

	appLog.Debug("calendar fetch start", "url", redactURL(c.base))

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return CalendarData{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var body []byte
	switch {
	case resp.StatusCode == http.StatusNotModified && len(cached) > 0:
		body = cached
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return CalendarData{}, fmt.Errorf("%w: %v", ErrFetch, err)
		}
	default:
		serr := statusError(resp, http.MethodGet, path)
		span.RecordError(serr)
		span.SetStatus(codes.Error, "status")
		return CalendarData{}, fmt.Errorf("%w: %w", ErrFetch, serr)
	}

	var data CalendarData
	if err := json.Unmarshal(body, &data); err != nil {
		return CalendarData{}, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}

	c.cacheMu.Lock()
	if tag := resp.Header.Get("ETag"); tag != "" {
		c.etag, c.lastBody = tag, body
	} else if resp.StatusCode != http.StatusNotModified {
		c.etag, c.lastBody = "", nil
	}
	c.cacheMu.Unlock()

	appLog.Info("calendar fetch success",
		"status", resp.StatusCode,
		"events", len(data.Events),
		"clinics", len(data.Resources),
	)
	return data, nil
}

// Appointment reads one instance's full detail for the edit dialog.
func (c *Client) Appointment(ctx context.Context, id model.ID) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "api.appointment.get")
	defer span.End()
	span.SetAttributes(attribute.String("apptcal.appointment_id", id.String()))

	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/appointments/"+id.String()+"/", "", nil, &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// Create posts one instance (or the head of a server-expanded series).
func (c *Client) Create(ctx context.Context, token string, req CreateRequest) (Created, error) {
	ctx, span := tracer.Start(ctx, "api.appointment.create")
	defer span.End()
	span.SetAttributes(attribute.Bool("apptcal.recurring", req.IsRecurring))

	var out Created
	if err := c.do(ctx, http.MethodPost, "/appointments/", token, req, &out); err != nil {
		span.RecordError(err)
		return Created{}, err
	}
	return out, nil
}

// PatchTimes moves or resizes an instance.
func (c *Client) PatchTimes(ctx context.Context, token string, id model.ID, start, end time.Time) error {
	ctx, span := tracer.Start(ctx, "api.appointment.patch_times")
	defer span.End()
	span.SetAttributes(attribute.String("apptcal.appointment_id", id.String()))

	err := c.do(ctx, http.MethodPatch, "/appointments/"+id.String()+"/", token, timesPatch{StartTime: start, EndTime: end}, nil)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// PatchDetails applies a dialog edit of status, type or notes.
func (c *Client) PatchDetails(ctx context.Context, token string, id model.ID, p DetailsPatch) error {
	ctx, span := tracer.Start(ctx, "api.appointment.patch_details")
	defer span.End()
	span.SetAttributes(attribute.String("apptcal.appointment_id", id.String()))

	err := c.do(ctx, http.MethodPatch, "/appointments/"+id.String()+"/", token, p, nil)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Delete removes an instance.
func (c *Client) Delete(ctx context.Context, token string, id model.ID) error {
	ctx, span := tracer.Start(ctx, "api.appointment.delete")
	defer span.End()
	span.SetAttributes(attribute.String("apptcal.appointment_id", id.String()))

	err := c.do(ctx, http.MethodDelete, "/appointments/"+id.String()+"/", token, nil, nil)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Token requests a fresh anti-forgery token. Tokens are never cached.
func (c *Client) Token(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "api.token")
	defer span.End()

	var out tokenResponse
	if err := c.do(ctx, http.MethodGet, c.tokenPath, "", nil, &out); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %w", ErrToken, err)
	}
	tok := out.CSRFToken
	if tok == "" {
		tok = out.Token
	}
	if tok == "" {
		return "", fmt.Errorf("%w: empty token", ErrToken)
	}
	return tok, nil
}

// do issues one JSON request. in is encoded when non-nil; out is decoded
// when non-nil and the response has a body.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(c.tokenHeader, token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		appLog.Error("api request failed", err, "method", method, "path", path)
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	appLog.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response, method, path string) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(b)),
	}
}

// redactURL keeps only scheme and host for logging.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "api://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
