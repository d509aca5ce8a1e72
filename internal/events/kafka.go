package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const kafkaQueueSize = 256

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink forwards events to a Kafka topic from a background loop, keyed by
// the event's record ID so one game's updates stay ordered on a partition.
type KafkaSink struct {
	cfg    KafkaConfig
	log    *slog.Logger
	writer kafkaMessageWriter
	closer kafkaWriteCloser

	queue     chan Event
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	dropped   atomic.Int64
}

var errNilKafkaWriter = errors.New("kafka sink requires a writer")

func NewKafkaSink(cfg KafkaConfig, log *slog.Logger) (*KafkaSink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaSinkWithWriter(cfg, log, w, w)
}

// newKafkaSinkWithWriter is used by tests to swap the broker connection.
func newKafkaSinkWithWriter(cfg KafkaConfig, log *slog.Logger, writer kafkaMessageWriter, closer kafkaWriteCloser) (*KafkaSink, error) {
	if writer == nil {
		return nil, errNilKafkaWriter
	}
	if log == nil {
		log = slog.Default()
	}
	return &KafkaSink{
		cfg:    cfg,
		log:    log.With(slog.String("component", "kafka_sink")),
		writer: writer,
		closer: closer,
		queue:  make(chan Event, kafkaQueueSize),
	}, nil
}

func (k *KafkaSink) Start(ctx context.Context) {
	k.startOnce.Do(func() {
		k.runCtx, k.cancel = context.WithCancel(ctx)
		k.started.Store(true)
		k.wg.Add(1)
		go k.run()
		k.log.Info("kafka_sink_started", slog.String("topic", k.cfg.Topic))
	})
}

// Deliver enqueues ev without blocking; events are dropped when the queue is full.
func (k *KafkaSink) Deliver(ev Event) {
	if !k.started.Load() {
		return
	}
	select {
	case k.queue <- ev:
	default:
		if n := k.dropped.Add(1); n%100 == 1 {
			k.log.Warn("kafka_sink_queue_full", slog.Int64("dropped", n))
		}
	}
}

func (k *KafkaSink) Stop(ctx context.Context) error {
	var stopErr error
	k.stopOnce.Do(func() {
		if k.cancel != nil {
			k.cancel()
		}
		done := make(chan struct{})
		go func() {
			k.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if k.closer != nil {
			if err := k.closer.Close(); err != nil && stopErr == nil {
				stopErr = err
			}
		}
		k.log.Info("kafka_sink_stopped")
	})
	return stopErr
}

func (k *KafkaSink) run() {
	defer k.wg.Done()
	for {
		select {
		case <-k.runCtx.Done():
			k.drain()
			k.started.Store(false)
			return
		case ev := <-k.queue:
			k.deliver(k.runCtx, ev)
		}
	}
}

func (k *KafkaSink) drain() {
	// the run context is gone; flush what is queued on a fresh one
	ctx := context.Background()
	for {
		select {
		case ev := <-k.queue:
			k.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (k *KafkaSink) deliver(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		k.log.Error("kafka_sink_encode_err", slog.Any("err", err), slog.String("topic", ev.Topic))
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Topic)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Error("kafka_sink_write_err", slog.Any("err", err), slog.String("topic", ev.Topic), slog.String("id", ev.ID))
	}
}
