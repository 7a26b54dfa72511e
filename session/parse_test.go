package session

import (
	"log/slog"
	"testing"

	"github.com/umtsd/udiald/uci"
)

func TestQuotedField(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{`+COPS: 0,0,"FONIC",2`, "FONIC", true},
		{`+COPS: 0,0,"O2 - de",2`, "O2 - de", true},
		{`+COPS: 0,0,"unterminated`, "unterminated", true},
		{`+COPS: 0`, "", false},
		{`+COPS: 0,0,"",2`, "", false},
	}
	for _, tt := range tests {
		got, ok := quotedField(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("quotedField(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCsqRSSI(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"+CSQ: 14,99", "14", true},
		{"+CSQ: 31,0", "31", true},
		{"+CSQ:", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := csqRSSI(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("csqRSSI(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestExitcode(t *testing.T) {
	newSession := func(app App) (*Session, *uci.Mem) {
		store := uci.NewMem()
		s := New(Config{
			App:         app,
			NetworkName: "wan",
			Store:       store,
			Log:         slog.New(slog.DiscardHandler),
		})
		return s, store
	}

	t.Run("Error writes code and message", func(t *testing.T) {
		s, store := newSession(AppConnect)
		code := s.exitcode(errf(CodeModem, "Unable to identify modem"))
		if code != CodeModem {
			t.Errorf("code = %v", code)
		}
		if got := store.GetInt("wan", "udiald_error_code", 0); got != int(CodeModem) {
			t.Errorf("udiald_error_code = %d", got)
		}
		if got, _ := store.Get("wan", "udiald_error_msg"); got != "Unable to identify modem" {
			t.Errorf("udiald_error_msg = %q", got)
		}
		if got, _ := store.Get("wan", "udiald_state"); got != "error" {
			t.Errorf("udiald_state = %q", got)
		}
	})

	t.Run("Success reverts connect state", func(t *testing.T) {
		s, store := newSession(AppConnect)
		store.Set("wan", "udiald_state", "init")
		if code := s.exitcode(nil); code != CodeOK {
			t.Errorf("code = %v", code)
		}
		if _, ok := store.Get("wan", "udiald_state"); ok {
			t.Error("udiald_state should be reverted")
		}
	})

	t.Run("Setup-phase signal overrides the error code", func(t *testing.T) {
		s, store := newSession(AppConnect)
		s.flagSignaled.Store(true)
		code := s.exitcode(errf(CodeModem, "Unable to identify modem"))
		if code != CodeSignaled {
			t.Errorf("code = %v, want signaled", code)
		}
		if _, ok := store.Get("wan", "udiald_error_code"); ok {
			t.Error("no error code should be written for signaled teardown")
		}
		if got, _ := store.Get("wan", "udiald_state"); got != "error" {
			t.Errorf("udiald_state = %q", got)
		}
	})

	t.Run("Child exit code survives a post-launch signal", func(t *testing.T) {
		// A signal recorded after the link child started does not set
		// the setup-phase flag, so a real child failure keeps its code.
		s, store := newSession(AppConnect)
		s.childPhase.Store(true)
		s.signaled.Store(15)
		code := s.exitcode(errf(CodeAuth, "pppd: invalid credentials"))
		if code != CodeAuth {
			t.Errorf("code = %v, want auth", code)
		}
		if got := store.GetInt("wan", "udiald_error_code", 0); got != int(CodeAuth) {
			t.Errorf("udiald_error_code = %d", got)
		}
	})

	t.Run("Scan mode leaves udiald_state alone", func(t *testing.T) {
		s, store := newSession(AppScan)
		s.exitcode(errf(CodeSIM, "Unable to get SIM status"))
		if _, ok := store.Get("wan", "udiald_state"); ok {
			t.Error("scan must not touch udiald_state")
		}
	})
}
