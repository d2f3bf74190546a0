package util

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PT_SET", "  value ")
	t.Setenv("PT_BLANK", "   ")

	if got := GetEnv("PT_SET"); got != "value" {
		t.Fatalf("GetEnv() = %q, want value", got)
	}
	if got := GetEnvString("PT_BLANK", "fallback"); got != "fallback" {
		t.Fatalf("GetEnvString() blank = %q, want fallback", got)
	}
	if got := GetEnvString("PT_UNSET_KEY", "fallback"); got != "fallback" {
		t.Fatalf("GetEnvString() unset = %q, want fallback", got)
	}
}

func TestGetEnvNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"integer", "42", 42},
		{"float truncates", "7.9", 7},
		{"garbage", "many", 5},
		{"blank", "", 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PT_NUM", tc.value)
			if got := GetEnvInt("PT_NUM", 5); got != tc.want {
				t.Fatalf("GetEnvInt() = %d, want %d", got, tc.want)
			}
		})
	}

	t.Setenv("PT_TTL", "30")
	if got := GetEnvSeconds("PT_TTL", time.Minute); got != 30*time.Second {
		t.Fatalf("GetEnvSeconds() = %v, want 30s", got)
	}
	if got := GetEnvSeconds("PT_TTL_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("GetEnvSeconds() default = %v, want 1m", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"FALSE", false},
		{"yes", true}, // unparseable, default
	}
	for _, tc := range tests {
		t.Setenv("PT_BOOL", tc.value)
		if got := GetEnvBool("PT_BOOL", true); got != tc.want {
			t.Fatalf("GetEnvBool(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
