package monitoring

import "testing"

func TestSetLoggerInstallsCustomFunc(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })

	Logf("scanner stalled on %s", "ttyUSB0")

	if got != "scanner stalled on %s" {
		t.Errorf("custom logger saw %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	SetLogger(nil)

	Logf("dropped sweep")

	if called {
		t.Error("muted logger still invoked the previous func")
	}
	if Logf == nil {
		t.Error("SetLogger(nil) must leave Logf callable")
	}
}

func TestLogfDefaultsNonNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf must be callable without SetLogger")
	}
}
