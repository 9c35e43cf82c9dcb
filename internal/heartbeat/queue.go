package heartbeat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "heartbeat"

var ErrUnsupportedQueue = errors.New("heartbeat: unsupported queue scheme")

// Queue appends heartbeat messages to a monitoring transport.
type Queue interface {
	Append(ctx context.Context, msg []byte) error
	Close() error
}

// OpenQueue resolves a queue transport from its address.
//
//	redis://host:6379/0?key=heartbeats  RPUSH onto the list "heartbeats"
//	https://host/queue/messages        POST of the message body
func OpenQueue(ctx context.Context, u *url.URL, httpClient *http.Client) (Queue, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: nil address", ErrUnsupportedQueue)
	}
	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss":
		return NewRedisQueue(ctx, u)
	case "http", "https":
		return NewHTTPQueue(u, httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedQueue, u.Scheme)
	}
}

// RedisQueue pushes messages onto a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(ctx context.Context, u *url.URL) (*RedisQueue, error) {
	stripped := *u
	query := stripped.Query()
	key := strings.TrimSpace(query.Get("key"))
	if key == "" {
		key = DefaultRedisKey
	}
	query.Del("key")
	stripped.RawQuery = query.Encode()

	opts, err := redis.ParseURL(stripped.String())
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("heartbeat: redis ping %s: %w", opts.Addr, err)
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Append(ctx context.Context, msg []byte) error {
	return q.client.RPush(ctx, q.key, msg).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// HTTPQueue posts each message to a queue endpoint.
type HTTPQueue struct {
	url    string
	client *http.Client
}

func NewHTTPQueue(u *url.URL, client *http.Client) (*HTTPQueue, error) {
	if strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("heartbeat: queue url missing host: %q", u.String())
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPQueue{url: u.String(), client: client}, nil
}

func (q *HTTPQueue) Append(ctx context.Context, msg []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat: queue responded %s", resp.Status)
	}
	return nil
}

func (q *HTTPQueue) Close() error {
	q.client.CloseIdleConnections()
	return nil
}
