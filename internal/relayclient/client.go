// Package relayclient talks to a roomsync relay over HTTP and websockets and
// implements collab.Remote for one application namespace.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const (
	defaultHTTPTimeout   = 15 * time.Second
	maxErrorBodyBytes    = 4096
	maxResponseBodyBytes = 8 << 20
)

var (
	errMissingBaseURL   = errors.New("relayclient: base url is required")
	errMissingNamespace = errors.New("relayclient: namespace is required")
)

// StatusError reports a non-2xx relay response.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relay responded %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	if e.Message != "" {
		return fmt.Sprintf("relay responded %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay responded %d", e.StatusCode)
}

type Config struct {
	BaseURL    string
	Namespace  string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// ReconnectInitial and ReconnectMax bound the realtime reconnect backoff.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Client is a collab.Remote bound to one namespace of a relay.
type Client struct {
	baseURL          *url.URL
	namespace        string
	httpClient       *http.Client
	logger           *zap.Logger
	reconnectInitial time.Duration
	reconnectMax     time.Duration
}

var _ collab.Remote = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	rawURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawURL == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relayclient: parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("relayclient: unsupported scheme %q", baseURL.Scheme)
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		return nil, errMissingNamespace
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	initial := cfg.ReconnectInitial
	if initial <= 0 {
		initial = defaultReconnectInitial
	}
	maximum := cfg.ReconnectMax
	if maximum < initial {
		maximum = defaultReconnectMax
		if maximum < initial {
			maximum = initial
		}
	}

	return &Client{
		baseURL:          baseURL,
		namespace:        namespace,
		httpClient:       httpClient,
		logger:           logger,
		reconnectInitial: initial,
		reconnectMax:     maximum,
	}, nil
}

// Namespace returns the application namespace the client is bound to.
func (c *Client) Namespace() string {
	return c.namespace
}

// Health checks that the relay is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL.String()+"/healthz", nil, nil)
}

func (c *Client) FetchRoom(ctx context.Context, code string) (collab.RoomRecord, bool, error) {
	var record collab.RoomRecord
	err := c.do(ctx, http.MethodGet, c.roomURL(code, ""), nil, &record)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return collab.RoomRecord{}, false, nil
	}
	if err != nil {
		return collab.RoomRecord{}, false, err
	}
	return record, true, nil
}

type putRoomRequest struct {
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin,omitempty"`
}

func (c *Client) UpsertRoom(ctx context.Context, record collab.RoomRecord) error {
	request := putRoomRequest{Payload: record.Payload, Origin: record.Origin}
	return c.do(ctx, http.MethodPut, c.roomURL(record.Code, ""), request, nil)
}

func (c *Client) InsertVersion(ctx context.Context, version collab.VersionRecord) error {
	return c.do(ctx, http.MethodPost, c.roomURL(version.RoomCode, "/versions"), version, nil)
}

type listVersionsResponse struct {
	Versions []collab.VersionRecord `json:"versions"`
}

func (c *Client) ListVersions(ctx context.Context, code string, limit int) ([]collab.VersionRecord, error) {
	target := c.roomURL(code, "/versions")
	if limit > 0 {
		target += "?limit=" + strconv.Itoa(limit)
	}
	var response listVersionsResponse
	if err := c.do(ctx, http.MethodGet, target, nil, &response); err != nil {
		return nil, err
	}
	return response.Versions, nil
}

func (c *Client) ClearVersions(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, c.roomURL(code, "/versions"), nil, nil)
}

func (c *Client) roomURL(code, suffix string) string {
	return c.baseURL.String() + "/v1/" + url.PathEscape(c.namespace) + "/rooms/" + url.PathEscape(code) + suffix
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("relayclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("relayclient: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("relayclient: %s %s: %w", method, request.URL.Path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeStatusError(response)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("relayclient: decode response: %w", err)
	}
	return nil
}

func decodeStatusError(response *http.Response) error {
	statusErr := &StatusError{StatusCode: response.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		statusErr.Message = payload.Error
		statusErr.Code = payload.Code
	} else {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	if statusErr.Message == "" {
		statusErr.Message = http.StatusText(response.StatusCode)
	}
	return statusErr
}
