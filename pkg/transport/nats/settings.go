package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/config"
)

const (
	DefaultSettingsBucket = "racegrid_settings"
	settingsKey           = "display"
)

// SettingsStore shares the display settings of all consoles of an event
// via a JetStream key/value bucket
type SettingsStore struct {
	kv jetstream.KeyValue
	l  *log.Logger
}

//nolint:whitespace // editor/linter issue
func NewSettingsStore(
	ctx context.Context,
	conn *nats.Conn,
	bucket string,
) (*SettingsStore, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "racegrid display settings",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create settings bucket %s: %w", bucket, err)
	}
	return &SettingsStore{kv: kv, l: log.Default().Named("nats.settings")}, nil
}

// Load returns the stored settings. ok is false if nothing was stored yet.
func (s *SettingsStore) Load(ctx context.Context) (d config.Display, ok bool, err error) {
	entry, err := s.kv.Get(ctx, settingsKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return config.Display{}, false, nil
		}
		return config.Display{}, false, err
	}
	d, err = decodeSettings(entry.Value())
	if err != nil {
		return config.Display{}, false, err
	}
	return d, true, nil
}

func (s *SettingsStore) Save(ctx context.Context, d config.Display) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, settingsKey, data)
	return err
}

// Watch calls onChange for every update of the settings until ctx is done.
// Invalid updates are logged and skipped.
func (s *SettingsStore) Watch(ctx context.Context, onChange func(config.Display)) error {
	w, err := s.kv.Watch(ctx, settingsKey, jetstream.UpdatesOnly())
	if err != nil {
		return err
	}
	go func() {
		defer func() {
			if err := w.Stop(); err != nil {
				s.l.Debug("error stopping watcher", log.ErrorField(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				d, err := decodeSettings(entry.Value())
				if err != nil {
					s.l.Warn("ignoring invalid settings", log.ErrorField(err))
					continue
				}
				s.l.Info("settings changed", log.Uint64("revision", entry.Revision()))
				onChange(d)
			}
		}
	}()
	return nil
}

// decodeSettings reads json settings, missing keys keep their defaults
func decodeSettings(data []byte) (config.Display, error) {
	d := config.DefaultDisplay()
	if err := json.Unmarshal(data, &d); err != nil {
		return config.Display{}, fmt.Errorf("could not decode settings: %w", err)
	}
	if err := d.Validate(); err != nil {
		return config.Display{}, err
	}
	return d, nil
}
