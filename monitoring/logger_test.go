package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("cell %d/%d", 3, 9)
	if got != "cell 3/9" {
		t.Errorf("expected redirected message %q, got %q", "cell 3/9", got)
	}

	SetLogger(nil)
	got = ""
	Logf("muted")
	if got != "" {
		t.Errorf("expected no output after SetLogger(nil), got %q", got)
	}
}
