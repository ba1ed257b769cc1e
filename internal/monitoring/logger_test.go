package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("beacon send failed on %s", "eth0")
	if got != "beacon send failed on eth0" {
		t.Errorf("unexpected logged message: %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("dropped %d frames", 3)
	SetLogger(nil)
}
