package profile

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/umtsd/udiald/uci"
)

// SectionType is the config-store section type user profiles live in.
const SectionType = "profile"

// Load reads user-defined profiles from the config store, in
// declaration order. Each profile is a section of type "profile":
//
//	config profile
//		option name 'My dongle'
//		option vendor '12d1'
//		option product '140c'
//		option driver 'option'
//		option control '2'
//		option data '0'
//		option mode_auto 'AT^SYSCFG=2,2,40000000,2,4'
//
// Sections without a name are skipped. Mode commands get their trailing
// carriage return appended here so profile entries store the bare
// command.
func Load(store uci.Store) []*Profile {
	var out []*Profile
	for _, s := range store.Sections(SectionType) {
		name := s["name"]
		if name == "" {
			slog.Warn("ignoring user profile without name")
			continue
		}
		p := &Profile{
			Name:    name,
			Driver:  s["driver"],
			ModeCmd: map[Mode]string{},
		}
		p.Vendor = parseHexWord(s["vendor"])
		p.Device = parseHexWord(s["product"])
		p.Control = atoi(s["control"])
		p.Data = atoi(s["data"])
		for m := ModeAuto; int(m) < NumModes; m++ {
			opt := "mode_" + strings.ReplaceAll(m.String(), "-", "_")
			if cmd, ok := s[opt]; ok {
				if cmd != "" && !strings.HasSuffix(cmd, "\r") {
					cmd += "\r"
				}
				p.ModeCmd[m] = cmd
			}
		}
		out = append(out, p)
	}
	return out
}

func parseHexWord(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
