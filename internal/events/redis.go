package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/storage"
)

func init() {
	Register("redis", newRedisSink, func() map[string]string {
		return map[string]string{
			"addr":         "localhost:6379",
			"password":     "",
			"db":           "0",
			"stream":       "arc-registrar:events",
			"max_len":      "100000",
			"dial_timeout": "5s",
		}
	})
}

// redisSink appends each event to a stream with XADD. Entries carry the
// event fields and its JSON encoding under "event".
type redisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func newRedisSink(ctx context.Context, config map[string]string) (Sink, error) {
	p := storage.Read("redis", config)
	opts := &redis.Options{
		Addr:        p.String("addr", "localhost:6379"),
		Password:    p.String("password", ""),
		DB:          p.Int("db", 0),
		DialTimeout: p.Duration("dial_timeout", 5*time.Second),
	}
	stream := p.Required("stream")
	maxLen := p.Int("max_len", 100000)
	if err := p.Err(); err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event sink: %w", err)
	}
	return &redisSink{client: client, stream: stream, maxLen: int64(maxLen)}, nil
}

func (s *redisSink) Publish(ctx context.Context, r *ledger.Receipt) error {
	pipe := s.client.Pipeline()
	for _, e := range r.Events {
		body, err := Marshal(e)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				"seq":     strconv.FormatUint(e.Seq, 10),
				"name":    e.Name,
				"kind":    e.Kind,
				"receipt": r.ID,
				"event":   body,
			},
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisSink) Close() error { return s.client.Close() }
