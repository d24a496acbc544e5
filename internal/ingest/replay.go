package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"energysense/internal/pipeline"
)

// Replay tails a telemetry CSV file incrementally. Each poll reads the
// rows appended since the previous one; the header is consumed once and
// cached so appended chunks never repeat it.
type Replay struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	offset int64
	mtime  time.Time
	fields map[string]int
}

func NewReplay(path string, log *slog.Logger) *Replay {
	if log == nil {
		log = slog.Default()
	}
	return &Replay{path: path, log: log, now: time.Now}
}

// Poll returns the events appended to the file since the last call.
// A missing file or an unchanged modification time yields nothing.
func (r *Replay) Poll() []pipeline.Event {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil
	}

	if r.offset > info.Size() {
		// File was rotated or rewritten; restart from the beginning.
		r.offset = 0
		r.fields = nil
	}

	mtime := info.ModTime()
	if !mtime.After(r.mtime) {
		return nil
	}
	r.mtime = mtime

	f, err := os.Open(r.path)
	if err != nil {
		r.log.Warn("opening stream file", "path", r.path, "error", err)
		return nil
	}
	defer f.Close()

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		r.log.Warn("seeking stream file", "path", r.path, "error", err)
		return nil
	}

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	var events []pipeline.Event
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.log.Warn("skipping malformed csv event", "path", r.path, "error", err)
			continue
		}

		if r.fields == nil {
			r.fields = fieldIndex(record)
			continue
		}

		reading, err := parseRecord(r.fields, record, r.now().UTC())
		if err != nil {
			if !errors.Is(err, errNoBlock) {
				r.log.Warn("skipping malformed csv event", "row", record, "error", err)
			}
			continue
		}

		events = append(events, pipeline.Event{Reading: reading, Source: "csv"})
	}
	r.offset += cr.InputOffset()

	return events
}
