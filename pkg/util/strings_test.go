package util

import (
	"reflect"
	"testing"
	"time"
)

func TestParseDurationDefault(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"30000", 30 * time.Second},
		{"90s", 90 * time.Second},
		{"-5", time.Second},
		{"bogus", time.Second},
	}
	for _, c := range cases {
		if got := ParseDurationDefault(c.in, time.Second); got != c.want {
			t.Fatalf("ParseDurationDefault(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseBoolDefault(t *testing.T) {
	if !ParseBoolDefault("", true) {
		t.Fatalf("expected default true")
	}
	if ParseBoolDefault("false", true) {
		t.Fatalf("expected false")
	}
	if !ParseBoolDefault("nope", true) {
		t.Fatalf("expected default on invalid input")
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, ,b,c ")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected split %v", got)
	}
}
