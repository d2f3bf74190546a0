package logger

import (
	"fmt"
	"testing"
)

type recorder struct {
	lines []string
}

func (r *recorder) add(level, msg string, kv []any) {
	r.lines = append(r.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestDispatchFansOut(t *testing.T) {
	prev := singleton
	t.Cleanup(func() { singleton = prev })

	a, b := &recorder{}, &recorder{}
	Init(a, b)

	Info("hello", "owner", "u1")
	Warn("careful")
	Log("plain", "k", 1)

	want := []string{"info hello [owner u1]", "warn careful []", "log plain [k 1]"}
	for _, r := range []*recorder{a, b} {
		if len(r.lines) != len(want) {
			t.Fatalf("got %v, want %v", r.lines, want)
		}
		for i := range want {
			if r.lines[i] != want[i] {
				t.Fatalf("line %d = %q, want %q", i, r.lines[i], want[i])
			}
		}
	}
}

func TestBeforeInitIsDropped(t *testing.T) {
	prev := singleton
	t.Cleanup(func() { singleton = prev })
	singleton = nil

	Error("nobody listens")
}
