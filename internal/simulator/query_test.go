package simulator

import (
	"errors"
	"testing"
)

func TestParseState(t *testing.T) {
	for in, want := range map[string]State{
		"booted":        StateBooted,
		" Shutdown ":    StateShutdown,
		"shutting_down": StateShuttingDown,
		"SHUTTING-DOWN": StateShuttingDown,
		"creating":      StateCreating,
	} {
		got, err := ParseState(in)
		if err != nil || got != want {
			t.Fatalf("ParseState(%q)=%q, %v", in, got, err)
		}
	}
	if _, err := ParseState("frozen"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err=%v", err)
	}
}

func TestFormat(t *testing.T) {
	sims := []Simulator{
		{UDID: "AAAA", Name: "iPhone 6", DeviceName: "iPhone 6", OSVersion: "iOS 9.0", State: StateBooted},
		{UDID: "BBBB", Name: "iPad", DeviceName: "iPad Air", OSVersion: "iOS 8.4", State: StateShutdown},
	}

	f, err := ParseFormat("udid, os-version")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.RenderAll(sims); got != "AAAA iOS 9.0\nBBBB iOS 8.4" {
		t.Fatalf("got %q", got)
	}

	def, err := ParseFormat("")
	if err != nil {
		t.Fatal(err)
	}
	if got := def.Render(sims[1]); got != "BBBB iPad shutdown" {
		t.Fatalf("default render %q", got)
	}
	if got := (Format{}).RenderAll(nil); got != "" {
		t.Fatalf("empty render %q", got)
	}

	if _, err := ParseFormat("udid,colour"); err == nil {
		t.Fatalf("unknown field accepted")
	}
}
