package scanmux

import (
	"strings"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr string
	}{
		{
			name: "zero values get defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values survive",
			in:   PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud gets default",
			in:   PortOptions{BaudRate: -1},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "parity word forms",
			in:   PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name: "parity with whitespace",
			in:   PortOptions{Parity: " odd "},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name:    "data bits too small",
			in:      PortOptions{DataBits: 4},
			wantErr: "invalid data bits",
		},
		{
			name:    "data bits too large",
			in:      PortOptions{DataBits: 9},
			wantErr: "invalid data bits",
		},
		{
			name:    "invalid stop bits",
			in:      PortOptions{StopBits: 3},
			wantErr: "invalid stop bits",
		},
		{
			name:    "unsupported parity",
			in:      PortOptions{Parity: "mark"},
			wantErr: "unsupported parity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Normalize succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Normalize error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptionsEqual(t *testing.T) {
	base := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}

	if !base.Equal(PortOptions{}) {
		t.Error("Defaults should equal explicit default values")
	}
	if !base.Equal(PortOptions{BaudRate: 115200, Parity: "none"}) {
		t.Error("Parity spellings should normalize before comparison")
	}
	if base.Equal(PortOptions{BaudRate: 9600}) {
		t.Error("Different baud rates should not be equal")
	}
	if base.Equal(PortOptions{Parity: "mark"}) {
		t.Error("Invalid options should never compare equal")
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "odd"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}

	if mode.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", mode.BaudRate)
	}
	if mode.DataBits != 7 {
		t.Errorf("DataBits = %d, want 7", mode.DataBits)
	}
	if mode.StopBits != serial.StopBits(2) {
		t.Errorf("StopBits = %v, want 2", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}
}

func TestPortOptionsSerialModeDefaults(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}

	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.Parity != serial.NoParity {
		t.Errorf("Parity = %v, want NoParity", mode.Parity)
	}
}

func TestPortOptionsSerialModeInvalid(t *testing.T) {
	_, err := PortOptions{DataBits: 3}.SerialMode()
	if err == nil {
		t.Error("Expected error for invalid options")
	}
}
