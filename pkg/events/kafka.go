// Package events publishes committed exchange events to Kafka
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/votebook/pkg/app/core/exchange"
)

const (
	queueSize    = 4096
	writeTimeout = 5 * time.Second
)

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards exchange events to a Kafka topic. Events are keyed by
// asset id so one asset's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
	logger *zap.SugaredLogger

	queue     chan exchange.Event
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewPublisher writes to topic on brokers
func NewPublisher(brokers []string, topic string, logger *zap.SugaredLogger) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
}

// NewPublisherWithWriter starts a publisher on any writer
func NewPublisherWithWriter(w MessageWriter, logger *zap.SugaredLogger) *Publisher {
	p := &Publisher{
		writer: w,
		logger: logger,
		queue:  make(chan exchange.Event, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Encode turns an event into a Kafka message
func Encode(ev exchange.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, errors.Wrapf(err, "encode %s event", ev.Type)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.AssetID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
		Time: time.UnixMilli(ev.Time),
	}, nil
}

// Handle queues an event. It never blocks the exchange: when the queue is
// full the event is dropped and logged.
func (p *Publisher) Handle(ev exchange.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warnw("kafka_dropped", "type", ev.Type, "asset_id", ev.AssetID, "trade_id", ev.TradeID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		msg, err := Encode(ev)
		if err != nil {
			p.logger.Warnw("kafka_encode_failed", "type", ev.Type, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.logger.Warnw("kafka_write_failed", "type", ev.Type, "asset_id", ev.AssetID, "error", err)
		}
	}
}

// Close flushes queued events and closes the writer
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.done
		err = p.writer.Close()
	})
	return err
}
