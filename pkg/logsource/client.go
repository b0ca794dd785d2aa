package logsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/retry"
	"chatsync/internal/tracing"
	"chatsync/pkg/logsource/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ClientOptions configures the HTTP/websocket log source client.
type ClientOptions struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	ReconnectFeeds bool
	Backoff        retry.BackoffConfig
	Logger         *logrus.Logger
}

// HTTPClient talks to the ordered log source backend: snapshot reads and
// atomic writes over HTTP, live change feeds over websocket.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	keys           *KeyGenerator
	reconnectFeeds bool
	backoff        retry.BackoffConfig
	logger         *logrus.Logger
}

// NewClient creates a log source client.
func NewClient(opts ClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeoutSec * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	backoff := opts.Backoff
	if backoff.InitialDelay <= 0 {
		backoff = retry.DefaultBackoffConfig()
		backoff.MaxAttempts = 0
	}
	return &HTTPClient{
		baseURL:        opts.BaseURL,
		apiKey:         opts.APIKey,
		client:         &http.Client{Timeout: timeout},
		keys:           NewKeyGenerator(),
		reconnectFeeds: opts.ReconnectFeeds,
		backoff:        backoff,
		logger:         logger,
	}
}

// ReadRange returns messages of one conversation in ascending key order.
func (c *HTTPClient) ReadRange(ctx context.Context, conversationID string, q types.RangeQuery) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "logsource.ReadRange",
		attribute.String("conversation_id", conversationID),
		attribute.Int("limit_from_end", q.LimitFromEnd),
	)
	defer span.End()

	params := url.Values{}
	if q.LimitFromEnd > 0 {
		params.Set("limitFromEnd", strconv.Itoa(q.LimitFromEnd))
	}
	if q.EndAtKey != "" {
		params.Set("endAtKey", string(q.EndAtKey))
	}
	if q.StartAtKey != "" {
		params.Set("startAtKey", string(q.StartAtKey))
	}

	endpoint := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	var result struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, params, nil, &result); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return result.Messages, nil
}

// GetConversation reads the parent conversation record.
func (c *HTTPClient) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	endpoint := fmt.Sprintf("/conversations/%s", url.PathEscape(conversationID))
	var conv models.Conversation
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// NewKey mints a fresh message key. Keys are generated client-side, the
// way the backend's own push keys are, so a send can build its full write
// set before any network round trip.
func (c *HTTPClient) NewKey(conversationID string) models.MessageKey {
	return c.keys.NewKey()
}

// WriteAtomic applies all pairs together or not at all.
func (c *HTTPClient) WriteAtomic(ctx context.Context, pairs []types.PathValue) error {
	ctx, span := tracing.StartSpan(ctx, "logsource.WriteAtomic",
		attribute.Int("path_count", len(pairs)),
	)
	defer span.End()

	body := struct {
		Writes []types.PathValue `json:"writes"`
	}{Writes: pairs}

	if err := c.doJSON(ctx, http.MethodPost, "/writeAtomic", nil, body, nil); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// LookupUserHandle resolves an @handle against user identities.
func (c *HTTPClient) LookupUserHandle(ctx context.Context, handle string) (*models.MentionEntry, error) {
	return c.lookupHandle(ctx, "/identities/users", handle)
}

// LookupConversationHandle resolves an @handle against conversation identities.
func (c *HTTPClient) LookupConversationHandle(ctx context.Context, handle string) (*models.MentionEntry, error) {
	return c.lookupHandle(ctx, "/identities/conversations", handle)
}

func (c *HTTPClient) lookupHandle(ctx context.Context, endpoint, handle string) (*models.MentionEntry, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var entry models.MentionEntry
	err := c.doJSON(ctx, http.MethodGet, endpoint, params, nil, &entry)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, params url.Values, body, out interface{}) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return errors.New(errors.ErrCodeNotFound, "not found").WithContext("endpoint", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.NewLogSourceError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, errors.ErrCodeLogSourceAPI, "failed to decode response")
		}
	}
	return nil
}
