package interpreter

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/antonkrylov/simrelay/internal/relay"
	"github.com/antonkrylov/simrelay/internal/simulator"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *simulator.Pool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	body := `simulators:
  - {udid: AAAA, name: iPhone 6, deviceName: iPhone 6, osVersion: iOS 9.0, state: shutdown}
  - {udid: BBBB, name: iPad Air, deviceName: iPad Air, osVersion: iOS 9.0, state: booted}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	pool, err := simulator.LoadPool(path)
	if err != nil {
		t.Fatal(err)
	}
	return New(pool, nil), pool
}

func TestInterpret(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		kind    relay.Kind
		message string
	}{
		{"list all", "list", relay.KindSuccess, "AAAA iPhone 6 shutdown\nBBBB iPad Air booted"},
		{"list by state", "list --state booted --format udid", relay.KindSuccess, "BBBB"},
		{"list quoted positional", `list "AAAA" --format "udid,os-version"`, relay.KindSuccess, "AAAA iOS 9.0"},
		{"list no match", "list --udid nope", relay.KindSuccess, ""},
		{"bad state", "list --state frozen", relay.KindFailure, `invalid simulator state: "frozen"`},
		{"unknown command", "frobnicate", relay.KindFailure, `unknown command "frobnicate" for "simrelay"`},
		{"unknown flag", "list --bogus", relay.KindFailure, "unknown flag: --bogus"},
		{"empty", "   ", relay.KindFailure, "empty command"},
		{"unterminated quote", `list "AAAA`, relay.KindFailure, ""},
		{"boot needs a query", "boot", relay.KindFailure, "boot needs --udid or --state"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interp, _ := newTestInterpreter(t)
			res := interp.Interpret(context.Background(), tc.line)
			if res.Kind != tc.kind {
				t.Fatalf("kind=%v message=%q", res.Kind, res.Message)
			}
			if tc.message != "" && res.Message != tc.message {
				t.Fatalf("message=%q want %q", res.Message, tc.message)
			}
		})
	}
}

func TestInterpret_BootAndShutdown(t *testing.T) {
	interp, pool := newTestInterpreter(t)
	ctx := context.Background()

	res := interp.Interpret(ctx, "boot --udid AAAA --format udid,state")
	if !res.OK() || res.Message != "AAAA booted" {
		t.Fatalf("boot=%+v", res)
	}
	if s, _ := pool.Get("AAAA"); s.State != simulator.StateBooted {
		t.Fatalf("pool state=%s", s.State)
	}

	res = interp.Interpret(ctx, "boot AAAA")
	if res.OK() || !strings.Contains(res.Message, "invalid simulator state") {
		t.Fatalf("second boot=%+v", res)
	}

	res = interp.Interpret(ctx, "shutdown --state booted --format udid")
	if !res.OK() || res.Message != "AAAA\nBBBB" {
		t.Fatalf("shutdown=%+v", res)
	}

	res = interp.Interpret(ctx, "shutdown --udid ZZZZ")
	if res.OK() || !strings.Contains(res.Message, "simulator not found") {
		t.Fatalf("shutdown of unknown=%+v", res)
	}
}

func TestInterpret_PartialStateChangeNamesChanged(t *testing.T) {
	interp, pool := newTestInterpreter(t)

	res := interp.Interpret(context.Background(), "boot AAAA BBBB --format udid,state")
	if res.OK() {
		t.Fatalf("boot with an already booted simulator succeeded: %+v", res)
	}
	if !strings.HasPrefix(res.Message, "boot succeeded for:\nAAAA booted\n") {
		t.Fatalf("message does not name the booted simulator: %q", res.Message)
	}
	if !strings.Contains(res.Message, "invalid simulator state: BBBB is booted") {
		t.Fatalf("message does not name the failure: %q", res.Message)
	}
	if s, _ := pool.Get("AAAA"); s.State != simulator.StateBooted {
		t.Fatalf("pool state=%s", s.State)
	}

	res = interp.Interpret(context.Background(), "shutdown BBBB")
	if !res.OK() {
		t.Fatalf("shutdown=%+v", res)
	}
	res = interp.Interpret(context.Background(), "shutdown AAAA BBBB --format udid")
	if res.OK() || !strings.HasPrefix(res.Message, "shutdown succeeded for:\nAAAA\n") {
		t.Fatalf("partial shutdown=%+v", res)
	}
}

func TestInterpret_FlagsDoNotLeakBetweenLines(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	ctx := context.Background()
	if res := interp.Interpret(ctx, "list --udid AAAA --format udid"); res.Message != "AAAA" {
		t.Fatalf("first=%+v", res)
	}
	if res := interp.Interpret(ctx, "list --format udid"); res.Message != "AAAA\nBBBB" {
		t.Fatalf("second=%+v", res)
	}
}

func TestInterpret_Diagnose(t *testing.T) {
	interp, pool := newTestInterpreter(t)
	logPath := filepath.Join(filepath.Dir(pool.Path()), "BBBB", "data", "Library", "Logs", "system.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	res := interp.Interpret(context.Background(), "diagnose")
	if !res.OK() || res.Message != "system.log "+logPath {
		t.Fatalf("diagnose=%+v", res)
	}
	res = interp.Interpret(context.Background(), "diagnose AAAA")
	if !res.OK() || res.Message != "" {
		t.Fatalf("diagnose without logs=%+v", res)
	}
}

func TestInterpret_Help(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	res := interp.Interpret(context.Background(), "help")
	if !res.OK() {
		t.Fatalf("help=%+v", res)
	}
	for _, name := range []string{"list", "boot", "shutdown", "diagnose"} {
		if !strings.Contains(res.Message, name) {
			t.Fatalf("help lacks %q:\n%s", name, res.Message)
		}
	}
	got := interp.Commands()
	slices.Sort(got)
	if want := []string{"boot", "diagnose", "help", "list", "shutdown"}; !slices.Equal(got, want) {
		t.Fatalf("commands=%v", got)
	}
}

func TestInterpretArgs(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	res := interp.InterpretArgs(context.Background(), []string{"list", "--udid", "BBBB", "--format", "name"})
	if !res.OK() || res.Message != "iPad Air" {
		t.Fatalf("res=%+v", res)
	}
	if res := interp.InterpretArgs(context.Background(), nil); res.OK() {
		t.Fatalf("empty args succeeded")
	}
}

func TestInterpreter_ImplementsRelayInterpreter(t *testing.T) {
	var _ relay.Interpreter = New(nil, nil)
}
