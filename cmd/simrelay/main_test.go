package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDevices = `simulators:
  - {udid: AAAA, name: iPhone 6, osVersion: iOS 9.0, state: shutdown}
  - {udid: BBBB, name: iPad Air, osVersion: iOS 9.0, state: booted}
`

func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SIMRELAY_HOME", home)
	t.Setenv("SIMRELAY_CONFIG", "")
	t.Setenv("SIMRELAY_NATS_URL", "")
	devices := filepath.Join(home, "devices.yaml")
	if err := os.WriteFile(devices, []byte(testDevices), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIMRELAY_DEVICE_SET", devices)
	return home
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, " INFO ": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range cases {
		if got, ok := parseLevel(in); !ok || got != want {
			t.Fatalf("parseLevel(%q)=%v,%v", in, got, ok)
		}
	}
	if got, ok := parseLevel("loud"); ok || got != slog.LevelInfo {
		t.Fatalf("unknown level=%v,%v", got, ok)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "loud", false, false)
	if !strings.Contains(buf.String(), "unknown log level") {
		t.Fatalf("missing warning: %q", buf.String())
	}
	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info: %q", buf.String())
	}

	logger = newLogger(&buf, "error", true, true)
	logger.Debug("shown", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("verbose json log=%q", buf.String())
	}
}

func TestOneShot(t *testing.T) {
	testEnv(t)
	out, errOut, err := run(t, "", "list", "--state", "booted", "--format", "udid,name")
	if err != nil || out != "BBBB iPad Air\n" || errOut != "" {
		t.Fatalf("out=%q err=%q %v", out, errOut, err)
	}

	out, errOut, err = run(t, "", "boot", "BBBB")
	if !errors.Is(err, errFailed) || out != "" || !strings.Contains(errOut, "invalid simulator state") {
		t.Fatalf("out=%q err=%q %v", out, errOut, err)
	}

	out, _, err = run(t, "", "help", "list")
	if err != nil || !strings.Contains(out, "--format") {
		t.Fatalf("help list=%q %v", out, err)
	}
}

func TestOneShot_GlobalFlagsBeforeCommand(t *testing.T) {
	home := testEnv(t)
	other := filepath.Join(home, "other.yaml")
	if err := os.WriteFile(other, []byte("simulators:\n  - {udid: CCCC, name: iPhone 5, state: booted}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := run(t, "", "--device-set", other, "--log-level", "error", "--verbose", "list", "--format", "udid")
	if err != nil || out != "CCCC\n" {
		t.Fatalf("out=%q err=%q %v", out, errOut, err)
	}

	out, errOut, err = run(t, "", "--log-json", "--log-level=warn", "shutdown", "--udid", "CCCC", "--format", "udid,state")
	if err != nil || out != "CCCC shutdown\n" {
		t.Fatalf("out=%q err=%q %v", out, errOut, err)
	}
}

func TestInteract_ConsoleUntilEOF(t *testing.T) {
	home := testEnv(t)
	transcript := filepath.Join(home, "session.zst")
	out, errOut, err := run(t, "list --format udid\nbogus\n", "--log-level", "error", "interact", "--transcript", transcript)
	if err != nil {
		t.Fatalf("interact: %v", err)
	}
	if out != "AAAA\nBBBB\nEnding local interactive mode\n" {
		t.Fatalf("stdout=%q", out)
	}
	if !strings.Contains(errOut, `unknown command "bogus"`) {
		t.Fatalf("stderr=%q", errOut)
	}
	if info, err := os.Stat(transcript); err != nil || info.Size() == 0 {
		t.Fatalf("transcript not written: %v", err)
	}
}

func TestInteract_RejectsBadSocketConfig(t *testing.T) {
	testEnv(t)
	_, _, err := run(t, "", "interact", "--port", "9000", "--ipv4=false")
	if err == nil || !strings.Contains(err.Error(), "at least one of ipv4 or ipv6") {
		t.Fatalf("err=%v", err)
	}
}

func TestDoctor(t *testing.T) {
	testEnv(t)
	out, _, err := run(t, "", "doctor")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"config_present=false", "device_set_present=true", `simulator="iPad Air | BBBB | booted"`, "bind_policy=strict"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output lacks %q:\n%s", want, out)
		}
	}
}

func TestInit(t *testing.T) {
	home := testEnv(t)
	out, _, err := run(t, "", "init")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(home, "config.yaml")
	if out != "wrote "+path+"\n" {
		t.Fatalf("init output=%q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"deviceSet: " + filepath.Join(home, "devices.yaml"), "bindPolicy: strict", "subject: simrelay.events"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("config lacks %q:\n%s", want, data)
		}
	}

	if _, _, err := run(t, "", "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second init err=%v", err)
	}
	if _, _, err := run(t, "", "--log-level", "debug", "init", "--force"); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	out, _, err = run(t, "", "doctor")
	if err != nil || !strings.Contains(out, "config_present=true") {
		t.Fatalf("doctor after init=%q %v", out, err)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "simrelay dev") {
		t.Fatalf("version=%q %v", out, err)
	}
}
