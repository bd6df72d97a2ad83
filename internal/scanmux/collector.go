package scanmux

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/monitoring"
)

// SweepHandler receives one query fingerprint per completed scanner sweep.
type SweepHandler func(fp *fingerprint.Fingerprint)

// Subscriber defines the minimal mux surface the Collector needs.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// Collector subscribes to a scan mux and assembles SCAN lines into
// fingerprints, one per ENDSCAN-delimited sweep. Configuration responses
// from the scanner are folded into a state map that debug routes and tests
// can inspect.
type Collector struct {
	mux     Subscriber
	handler SweepHandler

	stateMu sync.Mutex
	state   map[string]any
}

// NewCollector creates a Collector that delivers completed sweeps to handler.
func NewCollector(mux Subscriber, handler SweepHandler) *Collector {
	return &Collector{
		mux:     mux,
		handler: handler,
	}
}

// Run consumes scanner lines until the context is cancelled or the mux
// closes the subscription. Malformed lines are logged and skipped so a
// single bad reading does not discard the rest of a sweep.
func (c *Collector) Run(ctx context.Context) error {
	id, ch := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)

	pending := make(map[string]fingerprint.Reading)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-ch:
			if !ok {
				return nil
			}
			switch ClassifyLine(line) {
			case EventTypeReading:
				r, err := ParseReading(line)
				if err != nil {
					monitoring.Logf("skipping scan line %q: %v", line, err)
					continue
				}
				// a later line for the same BSSID replaces the earlier one
				// within a sweep
				pending[r.SourceID()] = r

			case EventTypeEndScan:
				c.flush(pending)
				pending = make(map[string]fingerprint.Reading)

			case EventTypeConfig:
				if err := c.handleConfigResponse(line); err != nil {
					monitoring.Logf("failed to handle config response: %v", err)
				}

			default:
				monitoring.Logf("unknown scanner line: %s", line)
			}
		}
	}
}

// flush hands the accumulated sweep to the handler. Sweeps with no readings
// are dropped; the scanner emits ENDSCAN even when nothing was heard.
func (c *Collector) flush(pending map[string]fingerprint.Reading) {
	if len(pending) == 0 {
		return
	}
	readings := make([]fingerprint.Reading, 0, len(pending))
	for _, r := range pending {
		readings = append(readings, r)
	}
	fp, err := fingerprint.New(readings...)
	if err != nil {
		monitoring.Logf("failed to assemble sweep fingerprint: %v", err)
		return
	}
	c.handler(fp)
}

func (c *Collector) handleConfigResponse(payload string) error {
	var configValues map[string]any

	if err := json.Unmarshal([]byte(payload), &configValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new config values
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == nil {
		c.state = make(map[string]any)
	}
	for k, v := range configValues {
		c.state[k] = v
	}
	return nil
}

// State returns a copy of the latest config values received from the scanner.
func (c *Collector) State() map[string]any {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make(map[string]any, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}
