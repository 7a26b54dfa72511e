package session

import (
	"fmt"
	"os"

	"github.com/umtsd/udiald/at"
	"github.com/umtsd/udiald/modem"
)

// runDial is the link daemon's connect-script reentry: the daemon has
// already opened the data TTY and hands it to us as stdin/stdout. We
// program the PDP context and dial; on CONNECT the daemon takes the
// line over.
func (s *Session) runDial() Code {
	t := s.cfg.DialTransport
	if t == nil {
		t = &modem.StdioTransport{In: os.Stdin, Out: os.Stdout}
	}
	s.setTransport(t)
	s.conn = &at.Conn{T: t, Log: s.log}

	// Disable echo; the response is discarded.
	if err := s.conn.Put("ATE0\r"); err == nil {
		s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
	}

	if apn, _ := s.store.Get(s.net, "udiald_apn"); apn != "" {
		if !at.ValidLiteral(apn) {
			return s.exitcode(errf(CodeInvalidArg, "Invalid APN configured (%s)", apn))
		}
		err := s.conn.Put(fmt.Sprintf("AT+CGDCONT=1,\"IP\",\"%s\"\r", apn))
		var fin at.Final
		if err == nil {
			fin, err = s.conn.Get(&s.resp, "", s.cfg.ATTimeout)
		}
		if err != nil || fin != at.FinalOK {
			return s.exitcode(errf(CodeDial, "Failed to set PDP context (%s)", s.resp.Flatten()))
		}
	}

	err := s.conn.Put("ATD*99***1#\r")
	var fin at.Final
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "", s.cfg.DialTimeout)
	}
	if err != nil || fin != at.FinalConnect {
		return s.exitcode(errf(CodeDial, "Failed to dial (%s)", s.resp.Flatten()))
	}

	s.log.Info("carrier established", "network", s.net)
	return s.exitcode(nil)
}
