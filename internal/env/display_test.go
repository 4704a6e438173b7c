package env

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"
)

func stubDetectFns(
	detectSession func() (string, string),
	detectSocket func(string) string,
) func() {
	origSession := detectSessionX11EnvFn
	origSocket := detectDisplayFromSocketFn
	detectSessionX11EnvFn = detectSession
	detectDisplayFromSocketFn = detectSocket
	return func() {
		detectSessionX11EnvFn = origSession
		detectDisplayFromSocketFn = origSocket
	}
}

func TestX11EnvironKeepsInheritedValues(t *testing.T) {
	restore := stubDetectFns(
		func() (string, string) { return ":99", "/tmp/should-not-be-used" },
		func(string) string { return ":88" },
	)
	defer restore()

	env := x11Environ([]string{
		"HOME=" + t.TempDir(),
		"DISPLAY=:7",
		"XAUTHORITY=/tmp/xauth-existing",
	}, "")

	if got := envLookup(env, "DISPLAY"); got != ":7" {
		t.Fatalf("DISPLAY = %q, want %q", got, ":7")
	}
	if got := envLookup(env, "XAUTHORITY"); got != "/tmp/xauth-existing" {
		t.Fatalf("XAUTHORITY = %q, want %q", got, "/tmp/xauth-existing")
	}
}

func TestX11EnvironConfiguredDisplayWins(t *testing.T) {
	restore := stubDetectFns(
		func() (string, string) { return "", "" },
		func(string) string { return "" },
	)
	defer restore()

	home := t.TempDir()
	xauth := filepath.Join(home, ".Xauthority")
	if err := os.WriteFile(xauth, []byte("cookie"), 0600); err != nil {
		t.Fatalf("write xauthority: %v", err)
	}

	env := x11Environ([]string{"HOME=" + home, "DISPLAY=:7"}, ":1")

	if got := envLookup(env, "DISPLAY"); got != ":1" {
		t.Fatalf("DISPLAY = %q, want %q", got, ":1")
	}
	if got := envLookup(env, "XAUTHORITY"); got != xauth {
		t.Fatalf("XAUTHORITY = %q, want %q", got, xauth)
	}
	if n := strings.Count(strings.Join(env, "\n"), "DISPLAY="); n != 1 {
		t.Fatalf("DISPLAY set %d times, want 1", n)
	}
}

func TestX11EnvironUsesDetectedSession(t *testing.T) {
	restore := stubDetectFns(
		func() (string, string) { return ":5", "/tmp/xauth-detected" },
		func(string) string { return ":88" },
	)
	defer restore()

	env := x11Environ([]string{"HOME=" + t.TempDir()}, "")

	if got := envLookup(env, "DISPLAY"); got != ":5" {
		t.Fatalf("DISPLAY = %q, want %q", got, ":5")
	}
	if got := envLookup(env, "XAUTHORITY"); got != "/tmp/xauth-detected" {
		t.Fatalf("XAUTHORITY = %q, want %q", got, "/tmp/xauth-detected")
	}
}

func TestX11EnvironFallsBackToSockets(t *testing.T) {
	restore := stubDetectFns(
		func() (string, string) { return "", "" },
		func(dir string) string {
			if dir != "/tmp/.X11-unix" {
				t.Fatalf("socket dir = %q", dir)
			}
			return ":3"
		},
	)
	defer restore()

	env := x11Environ([]string{"HOME=" + t.TempDir()}, "")
	if got := envLookup(env, "DISPLAY"); got != ":3" {
		t.Fatalf("DISPLAY = %q, want %q", got, ":3")
	}
	if got := envLookup(env, "XAUTHORITY"); got != "" {
		t.Fatalf("XAUTHORITY = %q, want unset", got)
	}
}

func TestX11EnvironLeavesDisplayUnsetWhenNothingFound(t *testing.T) {
	restore := stubDetectFns(
		func() (string, string) { return "", "" },
		func(string) string { return "" },
	)
	defer restore()

	in := []string{"HOME=" + t.TempDir(), "PATH=/usr/bin"}
	env := x11Environ(append([]string(nil), in...), "")
	if !reflect.DeepEqual(env, in) {
		t.Fatalf("env = %v, want %v", env, in)
	}
}

func TestDetectDisplayFromSocketsPicksHighest(t *testing.T) {
	orig := readDirFn
	defer func() { readDirFn = orig }()

	sockets := fstest.MapFS{
		"X0":     &fstest.MapFile{},
		"X12":    &fstest.MapFile{},
		"X2":     &fstest.MapFile{},
		"Xbogus": &fstest.MapFile{},
		"other":  &fstest.MapFile{},
	}
	readDirFn = func(string) ([]os.DirEntry, error) { return fs.ReadDir(sockets, ".") }

	if got := detectDisplayFromSockets("/tmp/.X11-unix"); got != ":12" {
		t.Fatalf("detectDisplayFromSockets = %q, want %q", got, ":12")
	}

	readDirFn = func(string) ([]os.DirEntry, error) { return nil, os.ErrNotExist }
	if got := detectDisplayFromSockets("/tmp/.X11-unix"); got != "" {
		t.Fatalf("detectDisplayFromSockets = %q, want empty", got)
	}
}

func TestParseLoginctlSessions(t *testing.T) {
	out := `
     2 1000 alice seat0 tty2
    c1  120 gdm   seat0 tty1
     7 1000 alice
`
	got := parseLoginctlSessions(out, "1000")
	want := []string{"2", "7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseLoginctlSessions = %v, want %v", got, want)
	}
}

func TestDetectSessionX11EnvReadsLeaderEnviron(t *testing.T) {
	origRun := runCommandFn
	origRead := readFileFn
	defer func() {
		runCommandFn = origRun
		readFileFn = origRead
	}()

	uid := strconv.Itoa(os.Getuid())
	runCommandFn = func(_ context.Context, _ io.Reader, name string, args ...string) (ExecResult, error) {
		switch strings.Join(args, " ") {
		case "list-sessions --no-legend":
			if name != "loginctl" {
				t.Fatalf("ran %q", name)
			}
			return ExecResult{Stdout: " 4 " + uid + " user seat0\n"}, nil
		case "show-session 4 -p Display -p Leader":
			return ExecResult{Stdout: "Display=:0\nLeader=1234\n"}, nil
		}
		return ExecResult{ExitCode: 1}, nil
	}
	readFileFn = func(path string) ([]byte, error) {
		if path != "/proc/1234/environ" {
			t.Fatalf("read %q", path)
		}
		return []byte("HOME=/home/u\x00DISPLAY=:1\x00XAUTHORITY=/run/user/1000/gdm/Xauthority\x00"), nil
	}

	display, xauth := detectSessionX11Env()
	if display != ":1" {
		t.Fatalf("display = %q, want %q", display, ":1")
	}
	if xauth != "/run/user/1000/gdm/Xauthority" {
		t.Fatalf("xauthority = %q", xauth)
	}
}
