package nats

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/codec"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
)

// HeaderInstance identifies the racegrid instance which published a message
const HeaderInstance = "Racegrid-Instance"

type (
	// Publisher sends frames and notifications. It implements grid.Notifier.
	Publisher struct {
		conn     *nats.Conn
		prefix   string
		instance string
		l        *log.Logger
		mu       sync.Mutex
		last     []byte // last published frame without its time
	}
	PublisherOption func(*Publisher)
)

var _ grid.Notifier = (*Publisher)(nil)

func WithPublishPrefix(prefix string) PublisherOption {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

func WithPublishLogger(l *log.Logger) PublisherOption {
	return func(p *Publisher) {
		p.l = l
	}
}

func NewPublisher(conn *nats.Conn, opts ...PublisherOption) *Publisher {
	ret := &Publisher{
		conn:     conn,
		instance: uuid.NewString(),
		l:        log.Default().Named("nats.publisher"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.l.Info("publisher created", log.String("instance", ret.instance))
	return ret
}

func (p *Publisher) Instance() string {
	return p.instance
}

// PublishFrame sends the frame if it differs from the previous one.
// It reports whether the frame was sent.
func (p *Publisher) PublishFrame(f grid.Frame) (bool, error) {
	key, err := frameKey(f)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if bytes.Equal(key, p.last) {
		return false, nil
	}
	data, err := codec.EncodeFrame(f)
	if err != nil {
		return false, err
	}
	if err := p.publish(SubjectFrame, data); err != nil {
		return false, err
	}
	p.last = key
	return true, nil
}

// frameKey is the encoded frame without the parts that change every tick
func frameKey(f grid.Frame) ([]byte, error) {
	f.Time = time.Time{}
	return codec.EncodeFrame(f)
}

func (p *Publisher) Notify(n grid.Notification) {
	data, err := codec.EncodeNotification(n)
	if err != nil {
		p.l.Error("could not encode notification", log.ErrorField(err))
		return
	}
	if err := p.publish(SubjectNotify, data); err != nil {
		p.l.Warn("could not publish notification",
			log.Stringer("kind", n.Kind), log.ErrorField(err))
	}
}

func (p *Publisher) publish(name string, data []byte) error {
	msg := nats.NewMsg(Subject(p.prefix, name))
	msg.Data = data
	msg.Header.Set(HeaderInstance, p.instance)
	return p.conn.PublishMsg(msg)
}
