package scanmux

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var errPortClosed = errors.New("scanner port closed")

// MockPort implements Porter over a pipe that replays canned scanner
// output. Writes land in a temp file so sent commands can be inspected.
type MockPort struct {
	io.Reader
	io.WriteCloser
}

func (m *MockPort) Write(p []byte) (n int, err error) {
	return m.WriteCloser.Write(p)
}

// NewMockScanMux creates a ScanMux instance backed by a mock scanner port
// that replays the given sweep block once a second, the cadence of the
// real scanner firmware.
func NewMockScanMux(mockSweep []byte) *ScanMux[*MockPort] {
	r, w := io.Pipe()
	f, err := os.CreateTemp("", "mock_scanner_port")
	if err != nil {
		panic("failed to create temp file for mock scanner port: " + err.Error())
	}
	log.Printf("Writing mock scanner port received input at %s", f.Name())

	go func() {
		defer w.Close()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			w.Write(mockSweep)
		}
	}()

	return NewScanMux(&MockPort{Reader: r, WriteCloser: f})
}

// TestablePort implements Porter with scriptable failures and latency.
// ReadError/WriteError fire once on the next call then clear; Read/WriteLatency
// delay every call; BlockReads makes Read wait for AddReadData or Close, the
// way a real port blocks between sweeps. Call counters and the write buffer
// let tests assert on traffic.
type TestablePort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	ReadLatency  time.Duration
	WriteLatency time.Duration

	ReadError  error
	WriteError error
	CloseError error

	Closed      bool
	ReadCalls   int
	WriteCalls  int
	ReadTimeout time.Duration
	BlockReads  bool

	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	tp := &TestablePort{
		ReadBuffer:  &bytes.Buffer{},
		WriteBuffer: &bytes.Buffer{},
	}
	tp.readCond = sync.NewCond(&tp.mu)
	return tp
}

func (t *TestablePort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.Closed {
		return 0, errPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	if t.BlockReads {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, errPortClosed
		}
	}

	return t.ReadBuffer.Read(p)
}

func (t *TestablePort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.WriteLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.WriteLatency)
		t.mu.Lock()
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the port closed and releases any reader blocked in Read.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData queues data for subsequent Read calls and wakes a blocked
// reader.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// GetWrittenData returns everything written to the port so far.
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.WriteBuffer.Bytes()
}

// Reset clears buffers, counters, and scripted behaviour.
func (t *TestablePort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
	t.ReadLatency = 0
	t.WriteLatency = 0
}

// MockPortFactory implements PortFactory, recording Open calls and handing
// back a scripted port or error.
type MockPortFactory struct {
	mu sync.Mutex

	Port      Porter
	Error     error
	OpenCalls []MockOpenCall
}

// MockOpenCall records the arguments of one Open call.
type MockOpenCall struct {
	Path string
	Mode *PortMode
}

// NewMockPortFactory creates a new MockPortFactory.
func NewMockPortFactory(port Porter) *MockPortFactory {
	return &MockPortFactory{Port: port}
}

func (f *MockPortFactory) Open(path string, mode *PortMode) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Mode: mode})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Reset clears recorded calls and the scripted error.
func (f *MockPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = nil
	f.Error = nil
}
