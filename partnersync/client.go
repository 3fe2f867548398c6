package partnersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
)

// Endpoint describes one partner API list endpoint and its documented
// maximum date window. Requests must stay inside the documented window
// minus a one-day safety margin; callers split larger ranges with
// SplitWindows before fetching.
type Endpoint struct {
	Type          models.EndpointType
	Path          string
	MaxWindowDays int
}

const windowSafetyMarginDays = 1

var endpoints = map[models.EndpointType]Endpoint{
	models.EndpointTypeShifts:       {Type: models.EndpointTypeShifts, Path: "/api/v1/shifts", MaxWindowDays: 7},
	models.EndpointTypeTimesheets:   {Type: models.EndpointTypeTimesheets, Path: "/api/v1/timesheets", MaxWindowDays: 7},
	models.EndpointTypeAbsences:     {Type: models.EndpointTypeAbsences, Path: "/api/v1/absences", MaxWindowDays: 30},
	models.EndpointTypeRevenue:      {Type: models.EndpointTypeRevenue, Path: "/api/v1/revenue", MaxWindowDays: 90},
	models.EndpointTypeRevenueGroup: {Type: models.EndpointTypeRevenueGroup, Path: "/api/v1/revenue-groups", MaxWindowDays: 90},
}

func EndpointFor(t models.EndpointType) (Endpoint, error) {
	ep, ok := endpoints[t]
	if !ok {
		return Endpoint{}, fmt.Errorf("unknown endpoint type %q", t)
	}
	return ep, nil
}

// EffectiveWindowDays is the largest range a single request may span.
func (e Endpoint) EffectiveWindowDays() int {
	days := e.MaxWindowDays - windowSafetyMarginDays
	if days < 1 {
		days = 1
	}
	return days
}

// DateRange is an inclusive [From, To] pair of dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// SplitWindows cuts an arbitrary range into sub-windows no longer than
// maxDays each. Both bounds are inclusive.
func SplitWindows(start, end time.Time, maxDays int) []DateRange {
	if maxDays < 1 {
		maxDays = 1
	}
	var windows []DateRange
	for cursor := start; !cursor.After(end); {
		windowEnd := cursor.AddDate(0, 0, maxDays-1)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, DateRange{From: cursor, To: windowEnd})
		cursor = windowEnd.AddDate(0, 0, 1)
	}
	return windows
}

// APIError distinguishes transient upstream failures from terminal
// validation errors. 5xx and timeouts are retryable; 4xx means the request
// itself is wrong and retrying would only repeat the failure.
type APIError struct {
	StatusCode int
	Body       string
	Timeout    bool
}

func (e *APIError) Error() string {
	if e.Timeout {
		return "partner api timeout"
	}
	return fmt.Sprintf("partner api error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.Timeout || e.StatusCode >= 500
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// RetryPolicy is a bounded retry applied uniformly to every partner call.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * 500 * time.Millisecond
		},
	}
}

type partnerClient struct {
	baseURL string
	apiKey  string
	keyHdr  string
	http    *http.Client
	limiter <-chan time.Time
	retry   RetryPolicy
}

func newPartnerClient(conn *models.PartnerConnection) (*partnerClient, error) {
	if conn == nil || strings.TrimSpace(conn.AuthSecretRef) == "" {
		return nil, errors.New("partner credentials missing")
	}
	baseURL := strings.TrimSpace(conn.BaseURL)
	if baseURL == "" {
		return nil, errors.New("partner base url missing")
	}
	keyHeader := strings.TrimSpace(os.Getenv("PARTNER_API_KEY_HEADER"))
	if keyHeader == "" {
		keyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("PARTNER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &partnerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  conn.AuthSecretRef,
		keyHdr:  keyHeader,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
		retry:   DefaultRetryPolicy(),
	}, nil
}

type listResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

// Records returns whichever list field the partner populated. Some partner
// versions use "data", older ones "items".
func (r listResponse) Records() []json.RawMessage {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.Items
}

// FetchPage fetches one page of records for a date-bounded window.
// The window must not exceed the endpoint's effective maximum; an empty
// response means "no data for window", not an error. Retryable upstream
// failures are retried per the client's policy before being surfaced.
func (c *partnerClient) FetchPage(ctx context.Context, endpoint Endpoint, window DateRange, pageToken string) ([]json.RawMessage, string, error) {
	if window.To.Before(window.From) {
		return nil, "", errors.New("invalid date range: end before start")
	}
	if days := int(window.To.Sub(window.From).Hours()/24) + 1; days > endpoint.EffectiveWindowDays() {
		return nil, "", fmt.Errorf("date range %d days exceeds %s window of %d days",
			days, endpoint.Type, endpoint.EffectiveWindowDays())
	}

	params := url.Values{}
	params.Set("from", window.From.Format("2006-01-02"))
	params.Set("to", window.To.Format("2006-01-02"))
	params.Set("limit", "200")
	if pageToken != "" {
		params.Set("cursor", pageToken)
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(c.retry.Backoff(attempt)):
			}
		}

		resp, err := c.getList(ctx, endpoint.Path, params)
		if err == nil {
			return resp.Records(), resp.NextCursor, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, "", err
		}
	}
	return nil, "", lastErr
}

func (c *partnerClient) getList(ctx context.Context, path string, params url.Values) (listResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return listResponse{}, err
	}
	req.Header.Set(c.keyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return listResponse{}, &APIError{Timeout: true}
		}
		return listResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return listResponse{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return listResponse{}, err
	}
	return parsed, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
