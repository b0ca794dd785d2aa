package logsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/retry"
	"chatsync/pkg/logsource/types"

	"github.com/coder/websocket"
)

// feedSubscription is the explicit handle on one attached live feed.
type feedSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *feedSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *feedSubscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe attaches live change listeners scoped to keys at or after
// fromKey. The initial dial happens synchronously so attachment errors
// surface to the caller; after that the feed reads on its own goroutine
// and, when reconnects are enabled, re-dials with backoff from the last
// key it has seen.
func (c *HTTPClient) Subscribe(ctx context.Context, conversationID string, fromKey models.MessageKey, handlers types.ChangeHandlers) (types.Subscription, error) {
	feedCtx, cancel := context.WithCancel(ctx)

	conn, err := c.dialFeed(feedCtx, conversationID, fromKey)
	if err != nil {
		cancel()
		return nil, errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to attach live feed")
	}

	sub := &feedSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.readFeed(feedCtx, conn, conversationID, fromKey, handlers, sub)

	return sub, nil
}

func (c *HTTPClient) dialFeed(ctx context.Context, conversationID string, fromKey models.MessageKey) (*websocket.Conn, error) {
	u := feedURL(c.baseURL, conversationID, fromKey)

	opts := &websocket.DialOptions{}
	if c.apiKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.apiKey}}
	}

	conn, _, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}
	return conn, nil
}

func (c *HTTPClient) readFeed(ctx context.Context, conn *websocket.Conn, conversationID string, fromKey models.MessageKey, handlers types.ChangeHandlers, sub *feedSubscription) {
	defer close(sub.done)

	lastKey := fromKey
	backoff := retry.NewBackoff(c.backoff)

	for {
		err := c.dispatchLoop(ctx, conn, handlers, &lastKey)
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if ctx.Err() != nil {
			return
		}
		if !c.reconnectFeeds {
			c.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Live feed closed")
			return
		}

		c.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Live feed lost, reconnecting")

		var next *websocket.Conn
		dialErr := backoff.Retry(ctx, func() error {
			var derr error
			next, derr = c.dialFeed(ctx, conversationID, lastKey)
			return derr
		})
		if dialErr != nil {
			return
		}
		conn = next
		c.logger.WithField("conversation_id", conversationID).Info("Live feed reconnected")
	}
}

func (c *HTTPClient) dispatchLoop(ctx context.Context, conn *websocket.Conn, handlers types.ChangeHandlers, lastKey *models.MessageKey) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var event types.ChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.WithError(err).Debug("Dropping malformed feed event")
			continue
		}

		switch event.Type {
		case types.EventAdded:
			if event.Message == nil {
				continue
			}
			if event.Message.Key > *lastKey {
				*lastKey = event.Message.Key
			}
			if handlers.OnAdded != nil {
				handlers.OnAdded(*event.Message)
			}
		case types.EventChanged:
			if event.Message == nil {
				continue
			}
			if handlers.OnChanged != nil {
				handlers.OnChanged(*event.Message)
			}
		case types.EventRemoved:
			if event.Key == "" {
				continue
			}
			if handlers.OnRemoved != nil {
				handlers.OnRemoved(event.Key)
			}
		default:
			c.logger.WithField("type", event.Type).Debug("Dropping unknown feed event type")
		}
	}
}

func feedURL(baseURL, conversationID string, fromKey models.MessageKey) string {
	u := baseURL
	if strings.HasPrefix(u, "https://") {
		u = "wss://" + strings.TrimPrefix(u, "https://")
	} else if strings.HasPrefix(u, "http://") {
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u += fmt.Sprintf("/conversations/%s/feed", url.PathEscape(conversationID))
	if fromKey != "" {
		u += "?from=" + url.QueryEscape(string(fromKey))
	}
	return u
}
