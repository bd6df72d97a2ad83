package scanmux

import (
	"go.bug.st/serial"
)

// NewRealScanMux creates a ScanMux instance backed by a real serial port at
// the given path using the provided serial options.
func NewRealScanMux(path string, opts PortOptions) (*ScanMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewScanMux[serial.Port](port), nil
}
