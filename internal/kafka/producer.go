package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Producer writes to any topic; the topic is set per message.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewProducer(brokers []string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Async:                  true, // fire-and-forget untuk throughput; log error di Completion
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Int("count", len(msgs)).Msg("kafka write failed")
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called or ctx is done. Pending
// messages are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.Close()
				for m := range p.inbox {
					p.write(m)
				}
				_ = p.w.Close()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		log.Error().Err(err).Str("topic", m.Topic).Str("key", string(m.Key)).Msg("kafka publish")
	}
}

// Publish implements orders.EventSink. It never blocks: messages published
// after Close or while the buffer is full are dropped and logged.
func (p *Producer) Publish(topic string, key, value []byte, headers map[string]string) {
	hs := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: hs}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warn().Str("topic", topic).Str("key", string(key)).Msg("producer closed, event dropped")
		return
	}
	select {
	case p.inbox <- m:
	default:
		log.Warn().Str("topic", topic).Str("key", string(key)).Msg("producer buffer full, event dropped")
	}
}

// Tutup channel supaya goroutine nge-flush sisa pesan lalu exit rapi.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
