// Package pppd configures and supervises the external point-to-point
// link daemon. The daemon is a cooperating peer: it receives its
// options through a generated file and re-invokes this executable as
// its connect script, so the child's argv is part of the external
// interface.
package pppd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/umtsd/udiald/uci"
)

// DefaultPath is where OpenWrt installs the link daemon.
const DefaultPath = "/usr/sbin/pppd"

// Config describes one link-daemon launch.
type Config struct {
	NetworkName string
	DeviceID    string
	ProfileName string
	// DataTTY is the endpoint name carrying the link payload, without
	// the /dev/ prefix.
	DataTTY   string
	Verbosity int

	Store uci.Store
	Log   *slog.Logger

	// Path overrides DefaultPath; ConfDir overrides /tmp; SelfExe
	// overrides the executable named in the connect directive.
	Path    string
	ConfDir string
	SelfExe string
}

func (c *Config) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// Child is a running link daemon.
type Child struct {
	cmd      *exec.Cmd
	confPath string
	done     chan struct{}
}

// Start writes the daemon configuration file and launches the daemon.
// The file is created exclusively with owner-only permissions under a
// name unique to the network and this process.
func Start(cfg Config) (*Child, error) {
	confDir := cfg.ConfDir
	if confDir == "" {
		confDir = "/tmp"
	}
	confPath := filepath.Join(confDir, fmt.Sprintf("udiald-pppd-%s-%d", cfg.NetworkName, os.Getpid()))
	if err := os.Remove(confPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("clean up existing ppp config file: %w", err)
	}

	f, err := os.OpenFile(confPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create ppp config file: %w", err)
	}
	if err := writeOptions(f, &cfg); err != nil {
		f.Close()
		return nil, fmt.Errorf("write ppp config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write ppp config file: %w", err)
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	cmd := exec.Command(path, "file", confPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", path, err)
	}
	cfg.logger().Info("started link daemon", "pid", cmd.Process.Pid, "config", confPath)

	c := &Child{cmd: cmd, confPath: confPath, done: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// Pid returns the daemon's process id.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Done is closed once the daemon has exited and been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// TryWait reports whether the daemon has already exited, without
// blocking, and returns its final state if so.
func (c *Child) TryWait() (*os.ProcessState, bool) {
	select {
	case <-c.done:
		return c.cmd.ProcessState, true
	default:
		return nil, false
	}
}

// Terminate sends SIGTERM and waits for the daemon to exit.
func (c *Child) Terminate() *os.ProcessState {
	c.cmd.Process.Signal(syscall.SIGTERM)
	<-c.done
	return c.cmd.ProcessState
}

// writeOptions emits the daemon's option file. Option order follows the
// file format: device, speed, fixed flags, then configurable options.
func writeOptions(w io.Writer, cfg *Config) error {
	var b strings.Builder

	fmt.Fprintf(&b, "/dev/%s\n", cfg.DataTTY)
	b.WriteString("460800\ncrtscts\nlock\nnoauth\nnoipdefault\nnovj\nnodetach\n")

	store := cfg.Store
	net := cfg.NetworkName

	if ifname, _ := store.Get(net, "ifname"); ifname != "" {
		fmt.Fprintf(&b, "ifname \"%s\"\n", ifname)
	}

	// The daemon calls us back as its connect script in dial mode.
	self := cfg.SelfExe
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve own executable: %w", err)
		}
		self = exe
	}
	var verboseOpts string
	switch {
	case cfg.Verbosity >= 2:
		verboseOpts = " -v -v"
	case cfg.Verbosity == 1:
		verboseOpts = " -v"
	}
	fmt.Fprintf(&b, "connect \"%s -d -n%s -D%s -p%s%s\"\n",
		self, net, cfg.DeviceID, cfg.ProfileName, verboseOpts)

	fmt.Fprintf(&b, "linkname \"%s\"\nipparam \"%s\"\n", net, net)

	if store.GetInt(net, "defaultroute", 1) != 0 {
		b.WriteString("defaultroute\n")
	}
	if store.GetInt(net, "replacedefaultroute", 0) != 0 {
		b.WriteString("replacedefaultroute\n")
	}
	if store.GetInt(net, "usepeerdns", 1) != 0 {
		b.WriteString("usepeerdns\n")
	}
	if store.GetInt(net, "persist", 1) != 0 {
		b.WriteString("persist\n")
	}
	if v := store.GetInt(net, "unit", -1); v > 0 {
		fmt.Fprintf(&b, "unit %d\n", v)
	}
	if v := store.GetInt(net, "maxfail", 1); v >= 0 {
		fmt.Fprintf(&b, "maxfail %d\n", v)
	}
	if v := store.GetInt(net, "holdoff", 0); v >= 0 {
		fmt.Fprintf(&b, "holdoff %d\n", v)
	}
	if v := store.GetInt(net, "udiald_mtu", -1); v > 0 {
		fmt.Fprintf(&b, "mtu %d\nmru %d\n", v, v)
	}
	if store.GetInt(net, "noremoteip", 1) > 0 {
		b.WriteString("noremoteip\n")
	}

	b.WriteString("lcp-echo-failure 12\n")

	fmt.Fprintf(&b, "user \"%s\"\n", credential(store, net, "udiald_user"))
	fmt.Fprintf(&b, "password \"%s\"\n", credential(store, net, "udiald_pass"))

	if cfg.Verbosity >= 1 {
		b.WriteString("logfd 2\n")
	}
	if cfg.Verbosity >= 2 {
		b.WriteString("debug\n")
	}

	for _, opt := range store.GetList(net, "udiald_pppdopt") {
		b.WriteString(opt)
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// credential fetches a value destined for a quoted option-file literal.
// Values containing a quote or line break would corrupt the file and
// are replaced by the empty string.
func credential(store uci.Store, section, option string) string {
	s, _ := store.Get(section, option)
	if strings.ContainsAny(s, "\"\r\n") {
		return ""
	}
	return s
}
