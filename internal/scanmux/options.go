package scanmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Scanner firmware default: 115200 8N1.
const (
	defaultBaudRate = 115200
	defaultDataBits = 8
	defaultStopBits = 1
)

// parities maps accepted spellings to the canonical single-letter form and
// its serial.Parity value.
var parities = map[string]struct {
	canonical string
	mode      serial.Parity
}{
	"N":    {"N", serial.NoParity},
	"NONE": {"N", serial.NoParity},
	"E":    {"E", serial.EvenParity},
	"EVEN": {"E", serial.EvenParity},
	"O":    {"O", serial.OddParity},
	"ODD":  {"O", serial.OddParity},
}

// PortOptions describes the serial connection parameters used when opening a
// real scanner port. The fields intentionally mirror the flag and config
// shapes used by the server binary so that the options can be passed through
// without additional translation.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = defaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = defaultDataBits
	}
	if opts.StopBits == 0 {
		opts.StopBits = defaultStopBits
	}

	switch {
	case opts.DataBits < 5 || opts.DataBits > 8:
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	case opts.StopBits != 1 && opts.StopBits != 2:
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	spelling := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if spelling == "" {
		spelling = "N"
	}
	parity, ok := parities[spelling]
	if !ok {
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity.canonical

	return opts, nil
}

// Equal reports whether two PortOptions describe the same serial
// configuration once normalized. Options that fail to normalize compare
// unequal to everything.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

// SerialMode converts the port options into the serial.Mode structure
// required by go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.StopBits(opts.StopBits),
		Parity:   parities[opts.Parity].mode,
	}, nil
}
