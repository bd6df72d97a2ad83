// Scanmux provides an abstraction over a serial-attached WiFi scanner with
// the ability for multiple clients to subscribe to scan lines from the
// scanner and send commands to a single scanner device.
package scanmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrWriteFailed = fmt.Errorf("failed to write to scanner port")

// ScanMux is a generic scanner port multiplexer that allows multiple clients
// to subscribe to scan lines from a single scanner device.
type ScanMux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// ScanMuxInterface defines the interface for the ScanMux type.
type ScanMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the
	// scanner. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the scanner port.
	SendCommand(string) error
	// Monitor reads lines from the scanner port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the scanner port.
	Close() error

	Initialize() error

	// AttachDebugRoutes attaches debugging endpoints to the given HTTP mux
	// served under /debug/scanner/.
	AttachDebugRoutes(*http.ServeMux)
}

// NewScanMux creates a ScanMux instance backed by a scanner port.
func NewScanMux[T Porter](port T) *ScanMux[T] {
	return &ScanMux[T]{
		port:         port,
		subscribers:  make(map[string]chan string),
		subscriberMu: sync.Mutex{},
		commandMu:    sync.Mutex{},
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *ScanMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the scan mux.
func (s *ScanMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize syncs the clock to the scanner and sets the output modes
// required for the scan line protocol to parse.
func (s *ScanMux[T]) Initialize() error {
	// sync the clock to the current UNIX time
	command := fmt.Sprintf("C=%d", time.Now().Unix())
	if err := s.SendCommand(command); err != nil {
		return fmt.Errorf("failed to synchronize clock: %w", err)
	}

	for _, command := range []string{
		"RST",     // reset to factory defaults
		"OC",      // emit SCAN lines as comma-separated values
		"OD",      // include per-BSSID RSSI deviation with each reading
		"OE",      // emit ENDSCAN after each sweep
		"FB",      // report beacon frames only
		"SI=1000", // set sweep interval to 1000 milliseconds
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}

	return nil
}

// SendCommand sends a command to the scanner port.
func (s *ScanMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor monitors the scanner port for lines and sends them to subscribers
func (s *ScanMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the scanner port & send any lines that
	// are scanned to lineChan, and any errors to the scanErrChan
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		// check if the context is done
		// and exit the loop if so
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// if the channel is closed, we're done reading from the scanner
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			// Check if we're closing
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			// otherwise take a read lock on the subscriber map
			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *ScanMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *ScanMux[T]) AttachDebugRoutes(mux *http.ServeMux) {
	// API endpoint to write a command to the scanner port
	mux.HandleFunc("/debug/scanner/send-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to scanner port", command)
	})

	// API endpoint to issue Server-Sent Events (SSE) in response to lines
	// coming from the scanner port.
	mux.HandleFunc("/debug/scanner/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := fmt.Fprintf(w, "data: %s\n\n", payload)
				if err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
