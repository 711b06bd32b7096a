package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisTTL = 7 * 24 * time.Hour

// RedisSink publishes a run to Redis for dashboards:
//
//	<prefix>:runs                   list of run IDs, newest first
//	<prefix>:run:<id>:summary       summary JSON without outcomes
//	<prefix>:run:<id>:outcomes      list of outcome JSON, in record order
type RedisSink struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisSink(client redis.Cmdable, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "contractkit"
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Open(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *RedisSink) Flush(ctx context.Context, sum Summary) error {
	head := sum
	head.Outcomes = nil
	summary, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	outcomes := make([]any, 0, len(sum.Outcomes))
	for _, o := range sum.Outcomes {
		b, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("encode outcome %q: %w", o.Name, err)
		}
		outcomes = append(outcomes, b)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.SummaryKey(sum.RunID), summary, s.ttl)
		if len(outcomes) > 0 {
			p.RPush(ctx, s.OutcomesKey(sum.RunID), outcomes...)
			p.Expire(ctx, s.OutcomesKey(sum.RunID), s.ttl)
		}
		p.LPush(ctx, s.RunsKey(), sum.RunID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish run %s: %w", sum.RunID, err)
	}
	return nil
}

func (s *RedisSink) RunsKey() string                 { return s.prefix + ":runs" }
func (s *RedisSink) SummaryKey(runID string) string  { return s.prefix + ":run:" + runID + ":summary" }
func (s *RedisSink) OutcomesKey(runID string) string { return s.prefix + ":run:" + runID + ":outcomes" }
