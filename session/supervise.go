package session

import (
	"strings"
	"time"

	"github.com/umtsd/udiald/at"
	"github.com/umtsd/udiald/pppd"
)

// Report RSSI to the log every logSteps supervise intervals.
const logSteps = 4

// supervise mirrors carrier name and signal strength into the config
// store every interval until a signal arrives or the link child exits.
func (s *Session) supervise() {
	// Set the reporting format for AT+COPS? to 0 (long alphanumeric),
	// for devices that default to numeric identifiers. "3" leaves the
	// actual network selection parameters unchanged.
	var fin at.Final
	err := s.conn.Put("AT+COPS=3,0\r")
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	}
	if err != nil || fin != at.FinalOK {
		s.log.Warn("failed to set long operator name format", "device", s.deviceID())
	}

	status := -1
	provider := ""
	for s.signaled.Load() == 0 {
		status++
		if status == 0 {
			// Downstream consumers rely on connected being visible
			// before the first query completes.
			s.store.Set(s.net, "connected", "1")
			s.store.Save()
		} else {
			select {
			case <-time.After(s.cfg.SuperviseInterval):
			case <-s.sigFired:
			case <-s.child.Done():
			}
			if s.signaled.Load() != 0 {
				break
			}
			if _, exited := s.child.TryWait(); exited {
				s.log.Info("link daemon exited, disconnecting")
				return
			}
		}

		s.conn.Flush()
		if err := s.conn.Put("AT+COPS?;+CSQ\r"); err != nil {
			continue
		}
		fin, err := s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
		if err != nil || fin != at.FinalOK || len(s.resp.Lines) < 3 {
			continue
		}
		cops, csq := s.resp.Lines[0], s.resp.Lines[1]

		if name, ok := quotedField(cops); ok && name != provider {
			s.log.Info("provider", "device", s.deviceID(), "name", name)
			s.store.Revert(s.net, "provider")
			s.store.Set(s.net, "provider", name)
			provider = name
		}

		if rssi, ok := csqRSSI(csq); ok {
			s.store.Revert(s.net, "rssi")
			s.store.Set(s.net, "rssi", rssi)
			if status%logSteps == 0 {
				s.log.Info("signal", "device", s.deviceID(), "rssi", rssi)
			}
		}
		s.store.Save()
	}
	s.log.Info("received signal, disconnecting", "signal", s.signaled.Load())
}

// finishConnect terminates the data session: hang up, reap the link
// child and translate its exit status.
func (s *Session) finishConnect() Code {
	s.store.Revert(s.net, "pid")
	s.store.Revert(s.net, "connected")
	s.store.Revert(s.net, "provider")
	s.store.Revert(s.net, "rssi")

	// Hang up and restore factory settings.
	s.conn.Put("ATH;&F\r")

	ps, exited := s.child.TryWait()
	if !exited {
		s.child.Terminate()
		return s.exitcode(errf(CodeSignaled, "Terminated by signal %d", s.signaled.Load()))
	}

	exit, code := pppd.Classify(ps)
	switch exit {
	case pppd.ExitSignaled:
		// pppd was terminated externally, not an error.
		return s.exitcode(errf(CodeSignaled, "pppd terminated"))
	case pppd.ExitModem:
		return s.exitcode(errf(CodeModem, "pppd: modem error"))
	case pppd.ExitDial:
		return s.exitcode(errf(CodeDial, "pppd: dialing error"))
	case pppd.ExitNetwork:
		return s.exitcode(errf(CodeNetwork, "pppd: terminated by network"))
	case pppd.ExitAuth:
		return s.exitcode(errf(CodeAuth, "pppd: invalid credentials"))
	default:
		return s.exitcode(errf(CodePPP, "pppd: other error (%d)", code))
	}
}

// quotedField extracts the substring between the first pair of double
// quotes, e.g. the carrier name of `+COPS: 0,0,"FONIC",2`.
func quotedField(s string) (string, bool) {
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return "", false
	}
	rest := s[i+1:]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		rest = rest[:j]
	}
	return rest, rest != ""
}

// csqRSSI extracts the first comma-separated integer of a +CSQ
// response, e.g. "14" of "+CSQ: 14,99".
func csqRSSI(s string) (string, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) < 2 {
		return "", false
	}
	return fields[1], true
}
