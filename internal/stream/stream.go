// Package stream is the durable feedback bus (C3): a redis stream
// carrying FeedbackEvent payloads from the proxy to the trainer via a
// consumer group, with pending-entry recovery (XPENDING/XCLAIM) so a
// crashed consumer's in-flight entries get reclaimed on restart instead
// of being lost.
package stream

import (
	"context"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message pairs a delivered event with its stream entry id, needed to
// ack or claim it later.
type Message struct {
	ID    string
	Event domain.FeedbackEvent
}

// Publisher appends feedback events to the stream.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewPublisher(client *redis.Client, streamName string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: streamName, maxLen: maxLen}
}

// Publish appends event to the stream, an append-only, at-least-once
// send.
func (p *Publisher) Publish(ctx context.Context, event domain.FeedbackEvent) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: toFields(event),
	}).Result()
	if err != nil {
		return "", qerrors.Unavailable("stream publish: " + err.Error())
	}
	return id, nil
}

// Consumer reads feedback events as a named member of a consumer group.
type Consumer struct {
	client       *redis.Client
	stream       string
	group        string
	consumerName string
}

func NewConsumer(client *redis.Client, streamName, group, consumerName string) *Consumer {
	return &Consumer{client: client, stream: streamName, group: group, consumerName: consumerName}
}

// EnsureGroup creates the consumer group starting from the beginning of
// the stream, tolerating BUSYGROUP (group already exists).
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return qerrors.Unavailable("stream ensure group: " + err.Error())
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Consume reads up to batchSize new (never-delivered) messages, blocking
// up to blockMS for at least one.
func (c *Consumer) Consume(ctx context.Context, batchSize int64, blockMS time.Duration) ([]Message, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerName,
		Streams:  []string{c.stream, ">"},
		Count:    batchSize,
		Block:    blockMS,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, qerrors.Unavailable("stream consume: " + err.Error())
	}
	return toMessages(res)
}

// RecoverPending claims entries idle for at least minIdle, delivered to
// some consumer but never acked. Run once at trainer startup so a crash
// mid-batch doesn't strand events in the pending entries list forever.
func (c *Consumer) RecoverPending(ctx context.Context, minIdle time.Duration, batchSize int64) ([]Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
	}).Result()
	if err != nil {
		return nil, qerrors.Unavailable("stream pending scan: " + err.Error())
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	res, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, qerrors.Unavailable("stream claim: " + err.Error())
	}
	return toMessagesFromXMessage(res)
}

// Ack acknowledges and deletes delivered entries, mirroring the
// original's xack-then-xdel pair (bounds stream growth).
func (c *Consumer) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return qerrors.Unavailable("stream ack: " + err.Error())
	}
	if err := c.client.XDel(ctx, c.stream, ids...).Err(); err != nil {
		return qerrors.Unavailable("stream del: " + err.Error())
	}
	return nil
}

func toFields(event domain.FeedbackEvent) map[string]interface{} {
	vec, _ := json.Marshal(event.ContextVector)
	meta, _ := json.Marshal(event.ContextMetadata)
	return map[string]interface{}{
		"experiment_id":    event.ExperimentID,
		"request_id":       event.RequestID,
		"arm_index":        strconv.Itoa(event.ArmIndex),
		"reward":           strconv.FormatFloat(event.Reward, 'f', -1, 64),
		"context_id":       event.ContextID,
		"context_vector":   string(vec),
		"context_metadata": string(meta),
		"timestamp_ms":     strconv.FormatInt(event.TimestampMS, 10),
	}
}

func fromFields(values map[string]interface{}) (domain.FeedbackEvent, error) {
	get := func(k string) string {
		v, _ := values[k].(string)
		return v
	}
	armIdx, err := strconv.Atoi(get("arm_index"))
	if err != nil {
		return domain.FeedbackEvent{}, qerrors.Internal("stream decode arm_index: " + err.Error())
	}
	reward, err := strconv.ParseFloat(get("reward"), 64)
	if err != nil {
		return domain.FeedbackEvent{}, qerrors.Internal("stream decode reward: " + err.Error())
	}
	ts, err := strconv.ParseInt(get("timestamp_ms"), 10, 64)
	if err != nil {
		return domain.FeedbackEvent{}, qerrors.Internal("stream decode timestamp_ms: " + err.Error())
	}
	var vec []float64
	_ = json.Unmarshal([]byte(get("context_vector")), &vec)
	var meta map[string]string
	_ = json.Unmarshal([]byte(get("context_metadata")), &meta)

	return domain.FeedbackEvent{
		ExperimentID:    get("experiment_id"),
		RequestID:       get("request_id"),
		ArmIndex:        armIdx,
		Reward:          reward,
		ContextID:       get("context_id"),
		ContextVector:   vec,
		ContextMetadata: meta,
		TimestampMS:     ts,
	}, nil
}

func toMessages(res []redis.XStream) ([]Message, error) {
	var out []Message
	for _, s := range res {
		msgs, err := toMessagesFromXMessage(s.Messages)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func toMessagesFromXMessage(xs []redis.XMessage) ([]Message, error) {
	out := make([]Message, 0, len(xs))
	for _, x := range xs {
		event, err := fromFields(x.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, Message{ID: x.ID, Event: event})
	}
	return out, nil
}
