package env

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const x11SocketDir = "/tmp/.X11-unix"

var (
	readFileFn                = os.ReadFile
	readDirFn                 = os.ReadDir
	detectSessionX11EnvFn     = detectSessionX11Env
	detectDisplayFromSocketFn = detectDisplayFromSockets
)

// x11Environ fills in DISPLAY and XAUTHORITY for the host's X session.
// Lookup order for DISPLAY: configured value, inherited environment, the
// user's logind session, the highest X11 socket. XAUTHORITY falls back to
// ~/.Xauthority when it exists. Unresolved variables are left unset.
func x11Environ(environ []string, display string) []string {
	display = strings.TrimSpace(display)
	if display == "" {
		display = envLookup(environ, "DISPLAY")
	}
	xauthority := envLookup(environ, "XAUTHORITY")

	if display == "" || xauthority == "" {
		sessDisplay, sessXAuth := detectSessionX11EnvFn()
		display = firstNonEmpty(display, sessDisplay)
		xauthority = firstNonEmpty(xauthority, sessXAuth)
	}
	if display == "" {
		display = detectDisplayFromSocketFn(x11SocketDir)
	}
	if xauthority == "" {
		xauthority = homeXAuthority(environ)
	}

	if display != "" {
		environ = upsertEnv(environ, "DISPLAY", display)
	}
	if xauthority != "" {
		environ = upsertEnv(environ, "XAUTHORITY", xauthority)
	}
	return environ
}

// firstNonEmpty returns the first non-empty trimmed value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func homeXAuthority(environ []string) string {
	home := envLookup(environ, "HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home == "" {
		return ""
	}
	candidate := filepath.Join(home, ".Xauthority")
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// detectSessionX11Env asks logind for the current user's graphical session
// and reads DISPLAY/XAUTHORITY from its leader process.
func detectSessionX11Env() (display, xauthority string) {
	res, err := runCommandFn(context.Background(), nil, "loginctl", "list-sessions", "--no-legend")
	if err != nil || res.ExitCode != 0 {
		return "", ""
	}
	for _, id := range parseLoginctlSessions(res.Stdout, strconv.Itoa(os.Getuid())) {
		props := sessionProps(id)
		sessDisplay := props["Display"]
		if sessDisplay == "" || strings.EqualFold(sessDisplay, "n/a") {
			continue
		}
		leader := props["Leader"]
		if leader == "" || leader == "0" {
			return sessDisplay, ""
		}
		environ, err := leaderEnviron(leader)
		if err != nil {
			return sessDisplay, ""
		}
		return firstNonEmpty(environ["DISPLAY"], sessDisplay), strings.TrimSpace(environ["XAUTHORITY"])
	}
	return "", ""
}

// parseLoginctlSessions returns the IDs of the sessions owned by uid from
// `loginctl list-sessions --no-legend` output.
func parseLoginctlSessions(output, uid string) []string {
	var ids []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == uid {
			ids = append(ids, fields[0])
		}
	}
	return ids
}

func sessionProps(id string) map[string]string {
	props := map[string]string{}
	res, err := runCommandFn(context.Background(), nil, "loginctl", "show-session", id, "-p", "Display", "-p", "Leader")
	if err != nil || res.ExitCode != 0 {
		return props
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			props[k] = strings.TrimSpace(v)
		}
	}
	return props
}

func leaderEnviron(pid string) (map[string]string, error) {
	data, err := readFileFn(filepath.Join("/proc", pid, "environ"))
	if err != nil {
		return nil, err
	}
	environ := map[string]string{}
	for _, entry := range bytes.Split(data, []byte{0}) {
		if k, v, ok := strings.Cut(string(entry), "="); ok {
			environ[k] = v
		}
	}
	return environ, nil
}

// detectDisplayFromSockets picks the highest-numbered X server socket in dir.
func detectDisplayFromSockets(dir string) string {
	entries, err := readDirFn(dir)
	if err != nil {
		return ""
	}
	var numbers []int
	for _, entry := range entries {
		num, ok := strings.CutPrefix(entry.Name(), "X")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(num); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", slices.Max(numbers))
}

func envLookup(environ []string, key string) string {
	for _, kv := range slices.Backward(environ) {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// upsertEnv drops every existing key entry and appends key=value.
func upsertEnv(environ []string, key, value string) []string {
	environ = slices.DeleteFunc(environ, func(kv string) bool {
		k, _, _ := strings.Cut(kv, "=")
		return k == key
	})
	return append(environ, key+"="+value)
}
