// Package busutil provides typed Kafka publish/consume helpers with
// OpenTelemetry trace propagation. Messages are JSON and keyed by
// article id so every stage of one article lands on the same partition.
package busutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Pipeline topics.
const (
	TopicRaw        = "raw_articles"
	TopicCleaned    = "cleaned_articles"
	TopicNormalized = "normalized_articles"
	TopicEnriched   = "enriched_articles"
)

const (
	publishRetries   = 3
	publishRetryWait = 100 * time.Millisecond

	// pingTimeout bounds the health probe dial.
	pingTimeout = 2 * time.Second
)

// headerCarrier adapts kafka.Message headers for OTel TextMapCarrier.
type headerCarrier kafka.Message

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, val string) {
	for i, h := range c.Headers {
		if h.Key == key {
			c.Headers[i].Value = []byte(val)
			return
		}
	}
	c.Headers = append(c.Headers, kafka.Header{Key: key, Value: []byte(val)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Headers))
	for _, h := range c.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// Writer publishes JSON messages to any pipeline topic over one shared
// connection pool.
type Writer struct {
	kw *kafka.Writer
}

// NewWriter creates a Writer for the given brokers. Messages are hashed
// by key onto partitions and acknowledged by all replicas.
func NewWriter(brokers []string) *Writer {
	return &Writer{kw: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (w *Writer) Close() error { return w.kw.Close() }

// Publish serializes v as JSON and publishes it to topic under key.
// Trace context from ctx is injected into message headers. Transient
// write failures are retried a few times with a linear backoff.
func Publish[T any](ctx context.Context, w *Writer, topic, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(&msg))

	var lastErr error
	for attempt := 0; attempt <= publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * publishRetryWait):
			}
		}
		if lastErr = w.kw.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("publish to %s: %w", topic, lastErr)
}

// kafkaReader is the slice of kafka.Reader the consumer uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader consumes one topic as part of a consumer group. Offsets are
// committed per message after the handler succeeds.
type Reader struct {
	kr    kafkaReader
	topic string
	log   *slog.Logger
}

// NewReader creates a group Reader for topic. New groups start from the
// earliest offset; commits flush asynchronously about once a second.
func NewReader(brokers []string, groupID, topic string, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		kr: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: time.Second,
			MinBytes:       1,
			MaxBytes:       10 << 20,
		}),
		topic: topic,
		log:   log,
	}
}

func (r *Reader) Close() error { return r.kr.Close() }

// Consume reads messages of type T until ctx is cancelled, invoking
// handler for each. Trace context is extracted from message headers and
// passed to the handler. Malformed messages are logged, committed, and
// dropped. A handler error leaves the message uncommitted so a restart
// redelivers it; a later commit on the same partition still advances
// the offset past it, so handlers must be idempotent on article id.
func Consume[T any](ctx context.Context, r *Reader, handler func(context.Context, T) error) error {
	for {
		msg, err := r.kr.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read from %s: %w", r.topic, err)
		}
		var v T
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			r.log.Warn("dropping malformed message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			r.commit(ctx, msg)
			continue
		}
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, (*headerCarrier)(&msg))
		if err := handler(msgCtx, v); err != nil {
			continue
		}
		r.commit(ctx, msg)
	}
}

func (r *Reader) commit(ctx context.Context, msg kafka.Message) {
	if err := r.kr.CommitMessages(ctx, msg); err != nil {
		r.log.Warn("offset commit failed", "topic", r.topic, "offset", msg.Offset, "error", err)
	}
}

// TopicSpec describes a topic to create at startup.
type TopicSpec struct {
	Name          string
	Partitions    int
	Replication   int
	RetentionDays int
}

// PipelineTopics returns the four pipeline topics. Enriched articles
// are kept longer since they feed reindexing.
func PipelineTopics() []TopicSpec {
	return []TopicSpec{
		{Name: TopicRaw, Partitions: 3, Replication: 1, RetentionDays: 7},
		{Name: TopicCleaned, Partitions: 3, Replication: 1, RetentionDays: 7},
		{Name: TopicNormalized, Partitions: 3, Replication: 1, RetentionDays: 7},
		{Name: TopicEnriched, Partitions: 3, Replication: 1, RetentionDays: 30},
	}
}

// EnsureTopics creates the given topics on the cluster controller.
// Already-existing topics are not an error.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		retentionMs := time.Duration(s.RetentionDays) * 24 * time.Hour / time.Millisecond
		configs = append(configs, kafka.TopicConfig{
			Topic:             s.Name,
			NumPartitions:     s.Partitions,
			ReplicationFactor: s.Replication,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(int64(retentionMs), 10)},
				{ConfigName: "compression.type", ConfigValue: "gzip"},
			},
		})
	}
	if err := ctrlConn.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}

// Ping verifies the cluster is reachable within the ping timeout.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}
