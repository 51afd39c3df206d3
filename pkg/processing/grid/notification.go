package grid

import (
	"time"

	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
)

type NotificationKind int

const (
	ReorderRequested NotificationKind = iota
	Reordered
	CrashOutChanged
)

func (k NotificationKind) String() string {
	switch k {
	case ReorderRequested:
		return "reorder-requested"
	case Reordered:
		return "reordered"
	case CrashOutChanged:
		return "crash-out-changed"
	}
	return "unknown"
}

func (k NotificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Notification struct {
	Kind NotificationKind `json:"kind"`
	Time time.Time        `json:"time"`
	// reorder requests
	Forced bool `json:"forced,omitempty"`
	// reordered
	Order []model.ChannelID `json:"order,omitempty"`
	// crash-out changes
	Channel model.ChannelID         `json:"channel,omitempty"`
	From    crashout.Classification `json:"from"`
	To      crashout.Classification `json:"to"`
}

// Notifier receives notifications on the tick goroutine.
// Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
