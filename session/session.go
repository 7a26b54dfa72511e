// Package session orchestrates one run of the connection manager: it
// selects a modem, identifies and unlocks it over its control channel,
// configures the radio mode, launches the link daemon and supervises
// the data session until terminated.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/umtsd/udiald/at"
	"github.com/umtsd/udiald/modem"
	"github.com/umtsd/udiald/pppd"
	"github.com/umtsd/udiald/profile"
	"github.com/umtsd/udiald/uci"
)

// App selects which of the mutually exclusive applications a session
// runs.
type App int

const (
	AppConnect App = iota
	AppScan
	AppProbe
	AppUnlock
	AppPUK
	AppDial
)

// SimState is the lock state reported by the SIM.
type SimState int

const (
	SimError   SimState = -1
	SimReady   SimState = 0
	SimWantPIN SimState = 1
	SimWantPUK SimState = 2
)

// Config carries everything one session run needs.
type Config struct {
	App         App
	NetworkName string

	// PIN overrides the config store's PIN when set.
	PIN string
	// PUK and NewPIN are the arguments of the unlock-puk application.
	PUK    string
	NewPIN string

	Filter    modem.Filter
	Registry  *profile.Registry
	Store     uci.Store
	Verbosity int
	// TestState refuses to connect when the store records a previous
	// SIM unlocking failure.
	TestState bool
	Log       *slog.Logger

	// SysfsRoot overrides the USB enumeration root, mainly for tests.
	SysfsRoot string
	// ControlDialer opens the control channel for a selected modem.
	// Defaults to a SerialDialer on the handle's control TTY.
	ControlDialer func(*modem.Handle) (modem.Transport, error)
	// DialTransport is the channel used by the dial application.
	// Defaults to the stdin/stdout pair inherited from the link daemon.
	DialTransport modem.Transport

	// Link daemon overrides, passed through to pppd.Start.
	PPPDPath    string
	PPPDConfDir string
	SelfExe     string

	ATTimeout         time.Duration
	ModeTimeout       time.Duration
	DialTimeout       time.Duration
	PinSettleDelay    time.Duration
	SuperviseInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.NetworkName == "" {
		c.NetworkName = "wan"
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 2500 * time.Millisecond
	}
	if c.ModeTimeout == 0 {
		c.ModeTimeout = 5 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.PinSettleDelay == 0 {
		c.PinSettleDelay = 5 * time.Second
	}
	if c.SuperviseInterval == 0 {
		c.SuperviseInterval = 15 * time.Second
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// Session is the aggregate runtime state of one run.
type Session struct {
	cfg   Config
	log   *slog.Logger
	store uci.Store
	net   string

	handle   *modem.Handle
	conn     *at.Conn
	resp     at.Response
	simState SimState
	isGSM    bool
	child    *pppd.Child

	// transport is the only state shared with the signal goroutine
	// besides the flags below.
	mu        sync.Mutex
	transport modem.Transport

	signaled     atomic.Int32 // first received signal number, never cleared
	flagSignaled atomic.Bool  // set when a signal interrupted the setup phases
	childPhase   atomic.Bool
	sigFired     chan struct{}
	sigCh        chan os.Signal
}

// New prepares a session. Run executes it.
func New(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg:   cfg,
		log:   cfg.Log,
		store: cfg.Store,
		net:   cfg.NetworkName,
	}
}

// Run executes the configured application and returns the process exit
// code.
func (s *Session) Run() Code {
	s.installSignals()
	defer s.releaseSignals()
	defer s.closeTransport()

	if s.cfg.App == AppDial {
		return s.runDial()
	}

	if s.cfg.App == AppConnect && s.cfg.TestState {
		if Code(s.store.GetInt(s.net, "udiald_error_code", int(CodeOK))) == CodeUnlock {
			s.log.Error("aborting due to previous SIM unlocking failure; check PIN and rescan before reconnecting")
			return CodeUnlock
		}
	}

	// Reset state from previous runs.
	for _, opt := range []string{
		"modem_name", "modem_driver", "modem_id", "modem_mode",
		"modem_gsm", "sim_state", "udiald_error_code", "udiald_error_msg",
	} {
		s.store.Revert(s.net, opt)
	}
	if s.cfg.App == AppConnect {
		s.store.Set(s.net, "udiald_state", "init")
		s.store.Save()
	}

	if err := s.selectModem(); err != nil {
		return s.exitcode(err)
	}
	if err := s.openControl(); err != nil {
		return s.exitcode(err)
	}
	s.reset()
	if err := s.identify(); err != nil {
		return s.exitcode(err)
	}
	if err := s.checkSIM(); err != nil {
		return s.exitcode(err)
	}

	switch s.cfg.App {
	case AppScan:
		return s.exitcode(nil) // we are done here
	case AppPUK:
		return s.exitcode(s.enterPUK())
	}

	if s.simState == SimWantPIN {
		if err := s.enterPIN(); err != nil {
			return s.exitcode(err)
		}
	}
	if s.cfg.App == AppUnlock {
		return s.exitcode(nil)
	}
	if s.cfg.App == AppProbe {
		s.probe()
		return s.exitcode(nil)
	}
	if s.simState == SimWantPUK {
		return s.exitcode(errf(CodeUnlock, "SIM locked - need PUK"))
	}

	s.checkCaps()

	if s.isGSM {
		if err := s.setMode(); err != nil {
			return s.exitcode(err)
		}
	} else {
		s.log.Info("skipped setting mode on non-GSM modem", "device", s.deviceID())
	}

	s.store.SetInt(s.net, "pid", os.Getpid())
	s.store.Save()

	// From here on, signals must no longer tear down the control line;
	// they just request the supervise loop to wind down.
	s.childPhase.Store(true)

	if s.cfg.App == AppConnect {
		s.store.Set(s.net, "udiald_state", "dial")
		s.store.Save()
	}

	child, err := pppd.Start(pppd.Config{
		NetworkName: s.net,
		DeviceID:    s.handle.DeviceID,
		ProfileName: s.handle.Profile.Name,
		DataTTY:     s.handle.DataTTY,
		Verbosity:   s.cfg.Verbosity,
		Store:       s.store,
		Log:         s.log,
		Path:        s.cfg.PPPDPath,
		ConfDir:     s.cfg.PPPDConfDir,
		SelfExe:     s.cfg.SelfExe,
	})
	if err != nil {
		s.log.Error("failed to start link daemon", "error", err)
		return s.exitcode(errf(CodeInternal, "pppd: failed to start"))
	}
	s.child = child

	s.supervise()

	return s.finishConnect()
}

func (s *Session) deviceID() string {
	if s.handle == nil {
		return ""
	}
	return s.handle.DeviceID
}

// exitcode settles the session's outcome: it persists error state into
// the config store and maps the outcome onto the process exit code. A
// signal observed during the setup phases overrides any error code.
func (s *Session) exitcode(e *Error) Code {
	code := CodeOK
	msg := ""
	if e != nil {
		code = e.Code
		msg = e.Msg
	}
	if code != CodeOK && s.flagSignaled.Load() {
		code = CodeSignaled
	}
	if code != CodeOK && code != CodeSignaled {
		s.store.SetInt(s.net, "udiald_error_code", int(code))
		if msg != "" {
			s.store.Set(s.net, "udiald_error_msg", msg)
			s.log.Error(msg, "device", s.deviceID())
		} else {
			s.store.Revert(s.net, "udiald_error_msg")
		}
	}
	if s.cfg.App == AppConnect {
		if code != CodeOK {
			s.store.Set(s.net, "udiald_state", "error")
		} else {
			s.store.Revert(s.net, "udiald_state")
		}
	}
	s.store.Save()
	return code
}

// selectModem picks the modem to use, depending on filter and
// autodetection. Only modems with a valid configuration profile
// qualify.
func (s *Session) selectModem() *Error {
	filter := s.cfg.Filter
	filter.RequireProfile = true

	d := &modem.Discoverer{SysfsRoot: s.cfg.SysfsRoot, Registry: s.cfg.Registry, Log: s.log}
	h, err := d.Find(&filter)
	if err != nil {
		return errf(CodeNoModem, "No usable modem found")
	}
	s.handle = h

	id := fmt.Sprintf("%04x:%04x", h.Vendor, h.Device)
	s.log.Info("found modem", "device", h.DeviceID, "driver", h.Driver, "id", id)
	s.store.Set(s.net, "modem_id", id)
	s.store.Set(s.net, "modem_driver", h.Driver)

	var modes []string
	for _, m := range h.Profile.Modes() {
		s.store.Append(s.net, "modem_mode", m.String())
		modes = append(modes, m.String())
	}
	s.log.Info("configuration profile", "profile", h.Profile.Name, "modes", strings.Join(modes, " "))
	return nil
}

// openControl opens the control connection.
func (s *Session) openControl() *Error {
	dial := s.cfg.ControlDialer
	if dial == nil {
		dial = func(h *modem.Handle) (modem.Transport, error) {
			return modem.SerialDialer{PortName: "/dev/" + h.ControlTTY}.Dial()
		}
	}
	t, err := dial(s.handle)
	if err != nil {
		s.log.Error("unable to open terminal", "error", err)
		return errf(CodeModem, "Unable to open terminal")
	}
	s.setTransport(t)
	s.conn = &at.Conn{T: t, Log: s.log}
	return nil
}

// reset discards pending input and disables command echoing. The
// response is discarded.
func (s *Session) reset() {
	s.conn.Flush()
	if err := s.conn.Put("ATE0\r"); err == nil {
		s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	}
	s.conn.Flush()
}

// identify queries the modem for manufacturer and model.
func (s *Session) identify() *Error {
	if err := s.conn.Put("AT+CGMI;+CGMM\r"); err != nil {
		return errf(CodeModem, "Unable to identify modem")
	}
	fin, err := s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	if err != nil || fin != at.FinalOK || len(s.resp.Lines) < 3 {
		return errf(CodeModem, "Unable to identify modem")
	}
	name := s.resp.Lines[0] + " " + s.resp.Lines[1]
	s.log.Info("identified modem", "device", s.deviceID(), "name", name)
	s.store.Set(s.net, "modem_name", name)
	return nil
}

// checkSIM queries the SIM lock state. In probe mode an unreadable or
// unknown state is only logged.
func (s *Session) checkSIM() *Error {
	s.conn.Flush()
	err := s.conn.Put("AT+CPIN?\r")
	var fin at.Final
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "+CPIN: ", s.cfg.ATTimeout)
	}
	if err != nil || fin != at.FinalOK || s.resp.ResultLine == "" {
		s.log.Error("unable to get SIM status", "device", s.deviceID(), "result", s.resp.Flatten())
		s.store.Set(s.net, "sim_state", "error")
		s.simState = SimError
		if s.cfg.App != AppProbe {
			return errf(CodeSIM, "Unable to get SIM status")
		}
		return nil
	}

	switch s.resp.ResultLine {
	case "+CPIN: READY":
		s.log.Info("SIM card is ready", "device", s.deviceID())
		s.store.Set(s.net, "sim_state", "ready")
		s.simState = SimReady
	case "+CPIN: SIM PIN":
		s.log.Info("SIM card requires PIN", "device", s.deviceID())
		s.store.Set(s.net, "sim_state", "wantpin")
		s.simState = SimWantPIN
	case "+CPIN: SIM PUK":
		s.log.Warn("SIM requires PUK", "device", s.deviceID())
		s.store.Set(s.net, "sim_state", "wantpuk")
		s.simState = SimWantPUK
	default:
		s.store.Set(s.net, "sim_state", "error")
		s.simState = SimError
		if s.cfg.App != AppProbe {
			return errf(CodeSIM, "Unknown SIM status (%s)", s.resp.ResultLine)
		}
		s.log.Error("unknown SIM status", "device", s.deviceID(), "result", s.resp.ResultLine)
	}
	return nil
}

// enterPIN unlocks the SIM with the configured PIN. A PIN recorded as
// failed in a previous run is never retried. In probe mode failures are
// only logged.
func (s *Session) enterPIN() *Error {
	probe := s.cfg.App == AppProbe
	pin := s.cfg.PIN
	if pin == "" {
		pin, _ = s.store.Get(s.net, "udiald_pin")
	}

	if pin == "" {
		if probe {
			s.log.Error("no PIN configured", "device", s.deviceID())
			return nil
		}
		return errf(CodeUnlock, "No PIN configured")
	}
	if !at.ValidLiteral(pin) {
		if probe {
			s.log.Error("invalid PIN configured", "device", s.deviceID())
			return nil
		}
		return errf(CodeInvalidArg, "Invalid PIN configured (%s)", pin)
	}

	if failed, ok := s.store.Get(uci.GlobalSection, "failed_pin"); ok && failed == pin {
		if probe {
			s.log.Error("not retrying previously failed PIN", "device", s.deviceID(), "pin", failed)
			return nil
		}
		return errf(CodeUnlock, "Not retrying previously failed pin (%s)", failed)
	}
	s.store.Revert(uci.GlobalSection, "failed_pin")

	s.conn.Flush()
	err := s.conn.Put(fmt.Sprintf("AT+CPIN=\"%s\"\r", pin))
	var fin at.Final
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	}
	if err != nil || fin != at.FinalOK {
		s.store.Set(uci.GlobalSection, "failed_pin", pin)
		if probe {
			s.log.Error("PIN rejected", "device", s.deviceID(), "pin", pin, "result", s.resp.Flatten())
			return nil
		}
		return errf(CodeUnlock, "PIN %s rejected (%s)", pin, s.resp.Flatten())
	}

	s.log.Info("PIN accepted", "device", s.deviceID())
	s.store.Set(s.net, "sim_state", "ready")
	s.simState = SimReady

	// Wait a few seconds for the dongle to find a carrier. Some
	// dongles do not send a NO CARRIER reply to the dialing but hang
	// up directly after sending CONNECT (Alcatel X060S / 1bbb:0000
	// showed this problem).
	time.Sleep(s.cfg.PinSettleDelay)
	return nil
}

// enterPUK resets the PIN of a locked-down SIM using the PUK. Only
// valid when the SIM reported the PUK-wanted state.
func (s *Session) enterPUK() *Error {
	if s.simState != SimWantPUK {
		return errf(CodeSIM, "Cannot use PUK - SIM not locked")
	}
	if !at.ValidLiteral(s.cfg.PUK) || !at.ValidLiteral(s.cfg.NewPIN) {
		return errf(CodeInvalidArg, "Invalid PIN or PUK")
	}

	s.conn.Flush()
	err := s.conn.Put(fmt.Sprintf("AT+CPIN=\"%s\",\"%s\"\r", s.cfg.PUK, s.cfg.NewPIN))
	var fin at.Final
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	}
	if err != nil || fin != at.FinalOK {
		return errf(CodeUnlock, "Failed to reset PIN")
	}
	s.log.Info("PIN reset successful", "device", s.deviceID())
	s.store.Set(s.net, "sim_state", "ready")
	s.simState = SimReady
	return nil
}

// checkCaps queries the device for supported capabilities. Failure just
// leaves the GSM flag unset.
func (s *Session) checkCaps() {
	s.isGSM = false
	if err := s.conn.Put("AT+GCAP\r"); err != nil {
		return
	}
	fin, err := s.conn.Get(&s.resp, "+GCAP: ", s.cfg.ATTimeout)
	if err != nil || fin != at.FinalOK || s.resp.ResultLine == "" {
		return
	}
	if strings.Contains(s.resp.ResultLine, "CGSM") {
		s.isGSM = true
		s.store.Set(s.net, "modem_gsm", "1")
		s.log.Info("detected a GSM modem", "device", s.deviceID())
	}
}

// setMode applies the configured radio-selection mode. An empty mode
// command means the device needs none and is skipped silently.
func (s *Session) setMode() *Error {
	name, _ := s.store.Get(s.net, "udiald_mode")
	if name == "" {
		name = "auto"
	}
	mode := profile.ParseMode(name)
	var cmd string
	var supported bool
	if mode != profile.ModeInvalid {
		cmd, supported = s.handle.Profile.ModeCmd[mode]
	}
	if !supported {
		return errf(CodeInvalidArg, "Unsupported mode (%s)", name)
	}

	s.conn.Flush()
	if cmd != "" {
		err := s.conn.Put(cmd)
		var fin at.Final
		if err == nil {
			fin, err = s.conn.Get(&s.resp, "", s.cfg.ModeTimeout)
		}
		if err != nil || fin != at.FinalOK {
			return errf(CodeModem, "Failed to set mode %s (%s)", mode, s.resp.Flatten())
		}
	} else {
		s.log.Debug("mode needs no command", "mode", mode.String())
	}
	s.log.Info("mode set", "device", s.deviceID(), "mode", mode.String())
	return nil
}
