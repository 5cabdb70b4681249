package util

import (
	"strings"
	"testing"
	"time"
)

func TestNewPrefixedID(t *testing.T) {
	id := NewPrefixedID("outbox_")
	if !strings.HasPrefix(id, "outbox_") {
		t.Errorf("expected prefix, got %q", id)
	}
	if len(id) != len("outbox_")+32 {
		t.Errorf("expected 32 hex characters after prefix, got %q", id)
	}
	if NewPrefixedID("x") == NewPrefixedID("x") {
		t.Error("expected distinct ids")
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if !IsID(id) {
		t.Errorf("NewID returned %q which does not parse", id)
	}
	if IsID("weekly-check-in") {
		t.Error("reserved survey id must not parse as a UUID")
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CARECHECK_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CARECHECK_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("CARECHECK_TEST_INT", "4")
	if got := ParseIntEnv("CARECHECK_TEST_INT", 6); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
	t.Setenv("CARECHECK_TEST_INT", "-1")
	if got := ParseIntEnv("CARECHECK_TEST_INT", 6); got != 6 {
		t.Errorf("got %d, want default 6", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CARECHECK_TEST_DURATION", "2s")
	if got := ParseDurationEnv("CARECHECK_TEST_DURATION", time.Second); got != 2*time.Second {
		t.Errorf("got %v", got)
	}
	t.Setenv("CARECHECK_TEST_DURATION", "soon")
	if got := ParseDurationEnv("CARECHECK_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("got %v, want default", got)
	}
}

func TestLoadLocation(t *testing.T) {
	if LoadLocation("") != time.UTC {
		t.Error("empty name should give UTC")
	}
	if LoadLocation("Not/AZone") != time.UTC {
		t.Error("unknown name should give UTC")
	}
}
