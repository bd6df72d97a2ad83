package scanmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledScanMux is a no-op ScanMux implementation used when the scanner
// hardware is absent (for --disable-scanner). It allows the server and debug
// routes to run without a real device. Subscribers are tracked so their
// channels can be deterministically closed on Unsubscribe() or Close(),
// allowing readers to unblock predictably during shutdown.
type DisabledScanMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledScanMux() *DisabledScanMux {
	return &DisabledScanMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledScanMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledScanMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledScanMux) SendCommand(string) error { return nil }

func (d *DisabledScanMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledScanMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	// Close all subscriber channels
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledScanMux) Initialize() error { return nil }

func (d *DisabledScanMux) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/scanner-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("scanner disabled"))
	})
}
