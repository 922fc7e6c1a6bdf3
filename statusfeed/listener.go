package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"github.com/richinsley/matforge2go/logging"
	"go.uber.org/zap"
)

// Listener follows a status feed and hands every message to OnMessage.
type Listener struct {
	URL       string
	OnMessage func(*Message)
	MaxRetry  int

	// Exponential backoff configuration
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute
	Dialer    websocket.Dialer

	retryCount int
	logger     *zap.Logger
}

// NewListener creates a Listener for url with the default retry policy.
func NewListener(url string, onMessage func(*Message), logger *zap.Logger) *Listener {
	return &Listener{
		URL:       url,
		OnMessage: onMessage,
		MaxRetry:  5,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Dialer:    *websocket.DefaultDialer,
		logger:    logging.OrNop(logger),
	}
}

// Listen connects, retrying with exponential backoff, and reads messages
// until ctx ends or the feed closes. A normal close returns nil.
func (l *Listener) Listen(ctx context.Context) error {
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading status feed: %w", err)
		}
		msg := &Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			l.logger.Warn("undecodable status message", zap.Error(err))
			continue
		}
		if l.OnMessage != nil {
			l.OnMessage(msg)
		}
	}
}

func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	for retries := 0; ; retries++ {
		conn, _, err := l.Dialer.DialContext(ctx, l.URL, nil)
		if err == nil {
			l.retryCount = 0
			return conn, nil
		}
		l.logger.Warn("connection attempt failed", zap.String("url", l.URL), zap.Error(err))
		if retries >= l.MaxRetry {
			return nil, fmt.Errorf("maximum number of retries reached (%d): %w", l.MaxRetry, err)
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(l.reconnectDelay()):
		}
	}
}

// reconnectDelay is BaseDelay * 2^retryCount, capped at MaxDelay.
func (l *Listener) reconnectDelay() time.Duration {
	delay := l.BaseDelay * time.Duration(math.Pow(2, float64(l.retryCount)))
	if delay > l.MaxDelay {
		delay = l.MaxDelay
	}
	l.retryCount++
	return delay
}
