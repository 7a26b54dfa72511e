package session

import (
	"strings"
	"time"

	"github.com/umtsd/udiald/at"
)

// probeCommands is the diagnostic battery fired by the probe
// application. Several entries are vendor-specific and expected to fail
// on most devices; that is the point of probing.
var probeCommands = []struct {
	cmd     string
	timeout time.Duration
}{
	{"ATI", 2500 * time.Millisecond},           // diagnostic info
	{"AT+GMI", 2500 * time.Millisecond},        // manufacturer
	{"AT^HWVER", 2500 * time.Millisecond},      // hardware version
	{"AT+CGMR", 2500 * time.Millisecond},       // software version
	{"AT+GMM", 2500 * time.Millisecond},        // model info (Sierra only?)
	{"AT+GMR", 2500 * time.Millisecond},        // revision info (Sierra only?)
	{"AT^CARDLOCK?", 2500 * time.Millisecond},  // simlock status
	{"AT+GCAP", 2500 * time.Millisecond},       // capabilities
	{"AT+CLCK=\"SC\",2", 2500 * time.Millisecond}, // SIM lock enabled state
	{"AT+CLCK=?", 2500 * time.Millisecond},     // available locking facilities
	{"AT+CFUN?", 2500 * time.Millisecond},      // current functionality level
	{"AT+CFUN=?", 2500 * time.Millisecond},     // supported functionality levels
	{"AT+CGDCONT?", 2500 * time.Millisecond},   // current PDP context
	{"AT+CGDCONT=?", 2500 * time.Millisecond},  // available PDP contexts
	{"AT+CREG?", 2500 * time.Millisecond},      // network attach status
	{"AT+CGREG?", 2500 * time.Millisecond},     // GPRS attach status
	{"AT+CEREG?", 2500 * time.Millisecond},     // LTE attach status
	{"AT!SELRAT=?", 2500 * time.Millisecond},   // supported RATs on Sierra devices
	{"AT+ZSNT?", 2500 * time.Millisecond},      // ZTE current mode
	{"AT^SYSCFG?", 2500 * time.Millisecond},    // Huawei current mode (legacy)
	{"AT^SYSCFGEX?", 2500 * time.Millisecond},  // Huawei current mode
	{"AT^SYSCFGEX=?", 2500 * time.Millisecond}, // Huawei supported modes
	{"AT^PREFMODE?", 2500 * time.Millisecond},  // Huawei EVDO current mode
	{"AT+COPS?", 2500 * time.Millisecond},      // current network
	// Scanning for available networks may take a while.
	{"AT+COPS=?", 45 * time.Second},
}

// probe fires the diagnostic battery. Failures never terminate the
// session; probing is a debug measure.
func (s *Session) probe() {
	s.log.Info("starting probe")
	for _, p := range probeCommands {
		s.probeCmd(p.cmd, p.timeout)
	}
	s.log.Info("probe finished")
}

func (s *Session) probeCmd(cmd string, timeout time.Duration) {
	s.log.Info("sending", "cmd", cmd)
	err := s.conn.Put(cmd + "\r")
	var fin at.Final
	if err == nil {
		fin, err = s.conn.Get(&s.resp, "", timeout)
	}
	if err != nil || fin != at.FinalOK {
		s.log.Error("probe command failed", "device", s.deviceID(), "cmd", cmd, "result", s.resp.Flatten())
		return
	}
	for _, line := range s.resp.Lines {
		if strings.Contains(line, "IMEI") {
			s.log.Info("<IMEI censored>")
		} else {
			s.log.Info(line)
		}
	}
}
