// feedgen appends synthetic zone telemetry to the stream CSV consumed by
// the server's replay source (block,energy_kwh,occupancy,temperature,ts).
// Useful for demos and for exercising the pipeline without live sensors.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"energysense/internal/config"
	"energysense/internal/ingest"
)

func main() {
	zonesPath := flag.String("zones", "data/blocks.json", "zone profiles JSON file")
	output := flag.String("output", "data/sensor_stream.csv", "stream CSV path")
	interval := flag.Duration("interval", 1500*time.Millisecond, "delay between readings")
	count := flag.Int("count", 0, "number of readings to write, 0 for unlimited")
	truncate := flag.Bool("truncate", false, "start a fresh file instead of appending")
	flag.Parse()

	zones := config.LoadZones(*zonesPath, nil)
	if len(zones) == 0 {
		log.Fatalf("No usable zone profiles in %s", *zonesPath)
	}

	mode := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if *truncate {
		mode = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(*output, mode, 0o644)
	if err != nil {
		log.Fatalf("Opening output file: %v", err)
	}
	defer f.Close()

	// The replay source consumes the header exactly once, so only a
	// fresh file gets one.
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("Stat output file: %v", err)
	}
	if info.Size() == 0 {
		fmt.Fprintln(f, "block,energy_kwh,occupancy,temperature,ts")
	}

	log.Printf("Writing readings for %d zones to %s every %s", len(zones), *output, *interval)

	synth := ingest.NewSynthetic(zones)
	written := 0
	for *count == 0 || written < *count {
		ev, ok := synth.Next()
		if !ok {
			break
		}
		r := ev.Reading
		fmt.Fprintf(f, "%s,%.2f,%.0f,%.1f,%s\n",
			r.ZoneID, r.EnergyKWh, r.Occupancy, r.Temperature, r.TS.UTC().Format(time.RFC3339))

		written++
		if written%100 == 0 {
			log.Printf("  %d readings written", written)
		}
		if *count == 0 || written < *count {
			time.Sleep(*interval)
		}
	}

	log.Printf("Wrote %d readings to %s", written, *output)
}
