package env

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures an SSHRuntime.
type SSHOptions struct {
	Host       string
	Port       int
	User       string
	KeyFile    string
	KnownHosts string

	// Insecure accepts any host key when KnownHosts is empty.
	Insecure bool

	Display     string
	Workdir     string
	ExecTimeout time.Duration

	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// SSHRuntime runs tests on a persistent desktop host or VM reached over
// SSH. The host itself is never created or destroyed.
type SSHRuntime struct {
	opts SSHOptions

	mu     sync.Mutex
	client *ssh.Client
	dial   func(ctx context.Context) (*ssh.Client, error)
}

var _ Runtime = (*SSHRuntime)(nil)

func NewSSHRuntime(opts SSHOptions) *SSHRuntime {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &SSHRuntime{opts: opts}
	r.dial = r.dialDefault
	return r
}

func (r *SSHRuntime) Name() string { return "ssh" }

func (r *SSHRuntime) address() string {
	return net.JoinHostPort(r.opts.Host, strconv.Itoa(r.opts.Port))
}

func (r *SSHRuntime) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if r.opts.KeyFile != "" {
		signer, err := loadPrivateKey(r.opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no authentication method provided (set runtime.ssh.key_file)")
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case r.opts.KnownHosts != "":
		cb, err := knownhosts.New(expandHome(r.opts.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKey = cb
	case r.opts.Insecure:
		r.opts.Logger.Warn("host key verification disabled", "host", r.opts.Host)
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, fmt.Errorf("no host key verification configured (set runtime.ssh.known_hosts or runtime.ssh.insecure_ignore_host_key)")
	}

	return &ssh.ClientConfig{
		User:            r.opts.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         r.opts.ConnectTimeout,
	}, nil
}

func (r *SSHRuntime) dialDefault(ctx context.Context) (*ssh.Client, error) {
	cfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.address())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", r.address(), err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, r.address(), cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", r.address(), err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// connect returns the cached client, dialing when needed.
func (r *SSHRuntime) connect(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *SSHRuntime) State(ctx context.Context) (State, error) {
	if _, err := r.connect(ctx); err != nil {
		r.opts.Logger.Debug("ssh host unreachable", "host", r.opts.Host, "error", err)
		return StateMissing, nil
	}
	return StateRunning, nil
}

// Ensure connects and creates the workdir. reused reports whether the
// workdir was already present.
func (r *SSHRuntime) Ensure(ctx context.Context) (bool, error) {
	res, err := r.shell(ctx, nil, "test -d "+shellQuote(r.opts.Workdir), 0)
	if err != nil {
		return false, err
	}
	if res.ExitCode == 0 {
		return true, nil
	}
	argv := []string{"mkdir", "-p", r.opts.Workdir}
	res, err = r.shell(ctx, nil, shellJoin(argv), 0)
	if err != nil {
		return false, err
	}
	return false, res.Check(argv)
}

// Remove closes the connection. The remote host is left running.
func (r *SSHRuntime) Remove(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// commandLine renders req as one remote shell command.
func (r *SSHRuntime) commandLine(req ExecRequest) string {
	var b strings.Builder
	if req.Dir != "" {
		b.WriteString("cd " + shellQuote(req.Dir) + " && ")
	}
	b.WriteString("env")
	if r.opts.Display != "" {
		b.WriteString(" DISPLAY=" + shellQuote(r.opts.Display))
	}
	for _, kv := range req.Env {
		b.WriteString(" " + shellQuote(kv))
	}
	b.WriteString(" " + shellJoin(req.Argv))
	return b.String()
}

func (r *SSHRuntime) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if len(req.Argv) == 0 {
		return ExecResult{}, fmt.Errorf("exec: empty command")
	}
	return r.shell(ctx, nil, r.commandLine(req), req.Timeout)
}

// shell runs a command line in a new session, feeding stdin when given.
func (r *SSHRuntime) shell(ctx context.Context, stdin io.Reader, command string, timeout time.Duration) (ExecResult, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return ExecResult{}, err
	}
	session, err := client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = stdin
	session.Stdout = &stdout
	session.Stderr = &stderr

	ctx, cancel := withTimeout(ctx, timeout, r.opts.ExecTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("ssh %s: %w", r.opts.Host, err)
		}
		return res, nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return ExecResult{}, fmt.Errorf("command timed out: %w", ctx.Err())
	}
}

func (r *SSHRuntime) CopyIn(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	root, name := dst, ""
	if !info.IsDir() {
		root, name = path.Dir(dst), path.Base(dst)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, src, name))
	}()
	command := "mkdir -p " + shellQuote(root) + " && tar -C " + shellQuote(root) + " -xf -"
	res, err := r.shell(ctx, pr, command, 0)
	pr.Close()
	if err != nil {
		return err
	}
	return res.Check([]string{"tar", "-C", root, "-xf", "-"})
}

func (r *SSHRuntime) CopyOut(ctx context.Context, src, dst string) error {
	client, err := r.connect(ctx)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	out, err := session.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Start("tar -C " + shellQuote(src) + " -cf - ."); err != nil {
		return fmt.Errorf("failed to start tar: %w", err)
	}
	if err := extractTar(out, dst); err != nil {
		return err
	}
	if err := session.Wait(); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Argv: []string{"tar", "-C", src, "-cf", "-", "."}, Code: exitErr.ExitStatus(), Stderr: stderr.String()}
		}
		return err
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func loadPrivateKey(keyPath string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(expandHome(keyPath))
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(keyData)
}
