package util

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/codec"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
)

// maximum size of a single recorded message
const maxLineSize = 1 << 20

type record struct {
	ev grid.Event
	ts time.Time
}

type peek interface {
	ts() time.Time
	provider() string
	current() grid.Event
	refill() bool
}

// recordedData reads the envelopes of one recording in the background.
// Lines which cannot be decoded are logged and skipped.
type recordedData struct {
	name     string
	dataChan chan record
	cur      record
}

func newRecordedData(ctx context.Context, name string, r io.Reader) *recordedData {
	ret := &recordedData{name: name, dataChan: make(chan record)}
	go ret.read(ctx, r)
	return ret
}

func (p *recordedData) read(ctx context.Context, r io.Reader) {
	defer close(p.dataChan)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		ev, ts, err := codec.DecodeEvent(scanner.Bytes())
		if err != nil {
			log.Warn("skipping line",
				log.String("provider", p.name),
				log.Int("line", line),
				log.ErrorField(err))
			continue
		}
		select {
		case p.dataChan <- record{ev: ev, ts: ts}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("error reading recording",
			log.String("provider", p.name), log.ErrorField(err))
	}
	log.Debug("no more data", log.String("provider", p.name), log.Int("lines", line))
}

func (p *recordedData) refill() bool {
	var ok bool
	p.cur, ok = <-p.dataChan
	return ok
}

func (p *recordedData) ts() time.Time {
	return p.cur.ts
}

func (p *recordedData) provider() string {
	return p.name
}

func (p *recordedData) current() grid.Event {
	return p.cur.ev
}
