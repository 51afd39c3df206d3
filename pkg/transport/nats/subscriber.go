// Package nats connects the grid coordinator to a NATS server.
// Timing events and user commands come in as codec envelopes, frames and
// notifications go out the same way.
package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/codec"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
	"github.com/mpapenbr/racegrid/pkg/utils/broadcast"
)

const (
	SubjectTiming  = "timing"
	SubjectCommand = "command"
	SubjectFrame   = "display.frame"
	SubjectNotify  = "display.notify"
)

func Subject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", prefix, name)
}

type (
	Subscriber struct {
		ctx     context.Context
		cancel  context.CancelFunc
		conn    *nats.Conn
		prefix  string
		l       *log.Logger
		observe func(grid.Event)
		data    chan grid.Event
		bs      broadcast.BroadcastServer[grid.Event]
		subs    []*nats.Subscription
	}
	SubscriberOption func(*Subscriber)
)

func WithContext(ctx context.Context) SubscriberOption {
	return func(s *Subscriber) {
		s.ctx = ctx
	}
}

func WithPrefix(prefix string) SubscriberOption {
	return func(s *Subscriber) {
		s.prefix = prefix
	}
}

func WithLogger(l *log.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.l = l
	}
}

// WithObserver registers a function which sees every event before it is
// handed to the subscribers of the source (e.g. the results service)
func WithObserver(observe func(grid.Event)) SubscriberOption {
	return func(s *Subscriber) {
		s.observe = observe
	}
}

// NewSubscriber subscribes to the timing and command subjects.
// The received events are distributed via Source.
func NewSubscriber(conn *nats.Conn, opts ...SubscriberOption) (*Subscriber, error) {
	ret := newSubscriber(opts...)
	ret.conn = conn
	for _, name := range []string{SubjectTiming, SubjectCommand} {
		subj := Subject(ret.prefix, name)
		sub, err := conn.Subscribe(subj, func(msg *nats.Msg) {
			ret.handle(msg.Data)
		})
		if err != nil {
			ret.Close()
			return nil, fmt.Errorf("could not subscribe to %s: %w", subj, err)
		}
		ret.l.Debug("subscribed", log.String("subject", subj))
		ret.subs = append(ret.subs, sub)
	}
	return ret, nil
}

func newSubscriber(opts ...SubscriberOption) *Subscriber {
	ret := &Subscriber{
		ctx:     context.Background(),
		l:       log.Default().Named("nats"),
		observe: func(grid.Event) {},
		data:    make(chan grid.Event),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.ctx, ret.cancel = context.WithCancel(ret.ctx)
	// timing events must not get lost, the coordinator only enqueues
	ret.bs = broadcast.NewBroadcastServer[grid.Event](ret.ctx, "nats.events", ret.data,
		broadcast.WithLogger[grid.Event](ret.l.Named("bcst")),
		broadcast.WithSendTimeout[grid.Event](0))
	return ret
}

// Source is the event stream for the coordinator
func (s *Subscriber) Source() broadcast.BroadcastServer[grid.Event] {
	return s.bs
}

func (s *Subscriber) handle(data []byte) {
	ev, _, err := codec.DecodeEvent(data)
	if err != nil {
		s.l.Warn("dropping message", log.ErrorField(err))
		return
	}
	s.observe(ev)
	select {
	case s.data <- ev:
	case <-s.ctx.Done():
	}
}

// Close unsubscribes and closes the event source
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		if !sub.IsValid() {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			s.l.Debug("error unsubscribing",
				log.String("sub", sub.Subject),
				log.ErrorField(err))
		}
	}
	s.subs = nil
	s.cancel()
	s.bs.Close()
}
