// Package codec converts grid events and frames to and from their JSON wire
// format. Every message is wrapped in an Envelope which names the payload type.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mpapenbr/racegrid/pkg/processing/grid"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingRace      = errors.New("race event without race")
)

const (
	TypeFrame        = "frame"
	TypeNotification = "notification"
)

type Envelope struct {
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type decoder func(data json.RawMessage) (grid.Event, error)

func decodeAs[T grid.Event](data json.RawMessage) (grid.Event, error) {
	var ev T
	if len(data) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

var decoders = map[string]decoder{
	grid.LapDetected{}.Kind():      decodeAs[grid.LapDetected],
	grid.LapDisqualified{}.Kind():  decodeAs[grid.LapDisqualified],
	grid.SplitDetected{}.Kind():    decodeAs[grid.SplitDetected],
	grid.PilotAdded{}.Kind():       decodeAs[grid.PilotAdded],
	grid.PilotRemoved{}.Kind():     decodeAs[grid.PilotRemoved],
	grid.RaceStarted{}.Kind():      decodeAs[grid.RaceStarted],
	grid.RaceEnded{}.Kind():        decodeAs[grid.RaceEnded],
	grid.RaceChanged{}.Kind():      requireRace(decodeAs[grid.RaceChanged]),
	grid.RaceCleared{}.Kind():      decodeAs[grid.RaceCleared],
	grid.RaceReset{}.Kind():        decodeAs[grid.RaceReset],
	grid.RaceResumed{}.Kind():      decodeAs[grid.RaceResumed],
	grid.LapsRecalculated{}.Kind(): decodeAs[grid.LapsRecalculated],
	grid.NewPersonalBest{}.Kind():  decodeAs[grid.NewPersonalBest],
	grid.CrashSignal{}.Kind():      decodeAs[grid.CrashSignal],
	grid.ManualCrashOut{}.Kind():   decodeAs[grid.ManualCrashOut],
	grid.RestoreSlot{}.Kind():      decodeAs[grid.RestoreSlot],
	grid.HideSlot{}.Kind():         decodeAs[grid.HideSlot],
	grid.FocusFullScreen{}.Kind():  decodeAs[grid.FocusFullScreen],
	grid.ClearFocus{}.Kind():       decodeAs[grid.ClearFocus],
	grid.ForceReorder{}.Kind():     decodeAs[grid.ForceReorder],
	grid.SetExtrasVisible{}.Kind(): decodeAs[grid.SetExtrasVisible],
	grid.SettingsChanged{}.Kind():  decodeAs[grid.SettingsChanged],
}

// a changed race must name the new race, all other lifecycle events
// may refer to the current one
func requireRace(d decoder) decoder {
	return func(data json.RawMessage) (grid.Event, error) {
		ev, err := d(data)
		if err != nil {
			return nil, err
		}
		if rc, ok := ev.(grid.RaceChanged); ok && rc.Race == nil {
			return nil, ErrMissingRace
		}
		return ev, nil
	}
}

// EncodeEvent wraps the event into an envelope
func EncodeEvent(ev grid.Event, t time.Time) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Type: ev.Kind(), Time: t, Payload: payload})
}

// DecodeEvent unwraps an envelope into an event. The envelope time is returned
// as well, it is used to pace replays.
func DecodeEvent(data []byte) (grid.Event, time.Time, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("could not decode envelope: %w", err)
	}
	d, ok := decoders[env.Type]
	if !ok {
		return nil, env.Time, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	ev, err := d(env.Payload)
	if err != nil {
		return nil, env.Time, fmt.Errorf("could not decode %s: %w", env.Type, err)
	}
	return ev, env.Time, nil
}

func EncodeFrame(f grid.Frame) ([]byte, error) {
	return encode(TypeFrame, f.Time, f)
}

func DecodeFrame(data []byte) (grid.Frame, error) {
	var ret grid.Frame
	return ret, decode(TypeFrame, data, &ret)
}

func EncodeNotification(n grid.Notification) ([]byte, error) {
	return encode(TypeNotification, n.Time, n)
}

func encode(typ string, t time.Time, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Time: t, Payload: payload})
}

func decode(typ string, data []byte, v any) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("could not decode envelope: %w", err)
	}
	if env.Type != typ {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("could not decode %s: %w", typ, err)
	}
	return nil
}
