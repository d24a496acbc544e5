package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"energysense/internal/model"
)

// Parser reads zone telemetry from a source and returns readings.
type Parser interface {
	Parse(r io.Reader) ([]model.Reading, error)
}

// errNoBlock marks rows without a zone id. They are skipped without a
// warning; everything else malformed is worth logging.
var errNoBlock = errors.New("row has no block id")

// CSVParser parses telemetry stream CSV exports.
//
// Expected format:
//
//	block,energy_kwh,occupancy,temperature,ts
//	block_a,9.42,55,27.5,2026-02-26T10:00:00Z
//
// Occupancy, temperature and ts are optional; missing timestamps default
// to the current time.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	fields := fieldIndex(header)

	var readings []model.Reading
	lineNum := 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		reading, err := parseRecord(fields, record, time.Now().UTC())
		if err != nil {
			// Skip unparseable rows (missing block, bad numbers).
			continue
		}

		readings = append(readings, reading)
	}

	return readings, nil
}

func validateHeader(header []string) error {
	if len(header) < 2 {
		return fmt.Errorf("expected at least 2 columns, got %d", len(header))
	}

	fields := fieldIndex(header)
	for _, col := range []string{"block", "energy_kwh"} {
		if _, ok := fields[col]; !ok {
			return fmt.Errorf("missing required column %q", col)
		}
	}

	return nil
}

func fieldIndex(header []string) map[string]int {
	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[strings.TrimSpace(name)] = i
	}
	return fields
}

// parseRecord maps one CSV record onto a reading using the cached header.
// A row without a block id returns errNoBlock; a missing timestamp gets
// now.
func parseRecord(fields map[string]int, record []string, now time.Time) (model.Reading, error) {
	get := func(name string) string {
		i, ok := fields[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	block := get("block")
	if block == "" {
		return model.Reading{}, errNoBlock
	}

	energy, err := strconv.ParseFloat(get("energy_kwh"), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("parsing energy_kwh: %w", err)
	}

	occupancy := 0.0
	if v := get("occupancy"); v != "" {
		occupancy, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parsing occupancy: %w", err)
		}
	}

	temperature := 0.0
	if v := get("temperature"); v != "" {
		temperature, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parsing temperature: %w", err)
		}
	}

	ts := now
	if v := get("ts"); v != "" {
		ts, err = parseTimestamp(v)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parsing ts: %w", err)
		}
	}

	return model.Reading{
		ZoneID:      block,
		EnergyKWh:   energy,
		Occupancy:   occupancy,
		Temperature: temperature,
		TS:          ts,
	}, nil
}

// parseTimestamp accepts RFC 3339 and zone-less ISO timestamps; the
// latter are treated as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
