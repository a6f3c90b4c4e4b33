package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"swapledger/core/types"
	"swapledger/services/indexer/storage"
)

const (
	eventsPath      = "/ws/events"
	dialTimeout     = 5 * time.Second
	maxReconnect    = time.Minute
	readLimit int64 = 1 << 20
)

// Store is the persistence surface the consumer writes to.
type Store interface {
	LastSeq(ctx context.Context) (uint64, error)
	RecordEvent(ctx context.Context, evt types.LoggedEvent, recorded time.Time) (bool, error)
}

// Consumer follows a node's event stream and records swap events. After a
// disconnect it resumes from the last stored sequence number.
type Consumer struct {
	endpoint  *url.URL
	store     Store
	reconnect time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises a Consumer.
type Option func(*Consumer)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnect sets the initial delay between connection attempts.
func WithReconnect(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.reconnect = d
		}
	}
}

// New builds a consumer for the node at nodeURL. http(s) URLs are mapped to
// ws(s) and the events path is appended when missing.
func New(nodeURL string, store Store, opts ...Option) (*Consumer, error) {
	if store == nil {
		return nil, errors.New("consumer: store required")
	}
	endpoint, err := EventsURL(nodeURL)
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		endpoint:  endpoint,
		store:     store,
		reconnect: 2 * time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EventsURL resolves the websocket endpoint of a node URL.
func EventsURL(nodeURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(nodeURL))
	if err != nil {
		return nil, fmt.Errorf("consumer: parse node url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("consumer: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("consumer: node url missing host")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, eventsPath) {
		path += eventsPath
	}
	parsed.Path = path
	parsed.RawQuery = ""
	return parsed, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	delay := c.reconnect
	for {
		connected, err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = c.reconnect
		}
		c.logger.Warn("event stream disconnected",
			slog.String("endpoint", c.endpoint.String()),
			slog.Duration("retry_in", delay),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnect {
			delay = maxReconnect
		}
	}
}

// consumeOnce streams until the connection fails. The boolean reports whether
// a connection was established.
func (c *Consumer) consumeOnce(ctx context.Context) (bool, error) {
	last, err := c.store.LastSeq(ctx)
	if err != nil {
		return false, err
	}
	target := *c.endpoint
	target.RawQuery = url.Values{"from": []string{strconv.FormatUint(last+1, 10)}}.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, target.String(), nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", target.Redacted(), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "consumer stopped")
	conn.SetReadLimit(readLimit)
	c.logger.Info("event stream connected", slog.Uint64("from", last+1))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		var evt types.LoggedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Warn("decode event", slog.Any("error", err))
			continue
		}
		inserted, err := c.store.RecordEvent(ctx, evt, c.now())
		switch {
		case errors.Is(err, storage.ErrNotSwapEvent):
			continue
		case err != nil:
			return true, fmt.Errorf("record event %d: %w", evt.Seq, err)
		case inserted:
			c.logger.Debug("indexed swap", slog.Uint64("seq", evt.Seq), slog.String("invocation", evt.Invocation))
		}
	}
}
