package session

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/umtsd/udiald/modem"
)

// installSignals sets up the two-phase signal plane. During the setup
// phases a termination signal closes the control line so any in-flight
// read unwinds to cleanup, and marks the session as signaled-in-setup.
// Once the link child runs, a signal is merely recorded; the supervise
// loop observes it at its iteration boundary.
func (s *Session) installSignals() {
	s.sigFired = make(chan struct{})
	s.sigCh = make(chan os.Signal, 4)
	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range s.sigCh {
			num, _ := sig.(syscall.Signal)
			if s.signaled.CompareAndSwap(0, int32(num)) {
				close(s.sigFired)
			}
			if !s.childPhase.Load() {
				s.flagSignaled.Store(true)
				s.closeTransport()
			}
		}
	}()
}

func (s *Session) releaseSignals() {
	signal.Stop(s.sigCh)
	close(s.sigCh)
}

func (s *Session) setTransport(t modem.Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
	// A signal may have fired between opening and registering.
	if s.flagSignaled.Load() {
		s.closeTransport()
	}
}

func (s *Session) closeTransport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
}
