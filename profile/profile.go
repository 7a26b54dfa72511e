// Package profile holds the per-device configuration profiles that map
// a modem's USB identity onto its serial endpoint layout and its
// radio-mode command set.
package profile

// Mode is a radio-selection directive. The set is closed: each profile
// maps each supported mode to a literal AT command string, so new modes
// require a code change.
type Mode int

const (
	ModeAuto Mode = iota
	ModeForceUMTS
	ModeForceGPRS
	ModePreferUMTS
	ModePreferGPRS

	NumModes int = iota
)

// ModeInvalid is the sentinel for unknown mode names.
const ModeInvalid Mode = -1

var modeNames = [...]string{
	ModeAuto:       "auto",
	ModeForceUMTS:  "force-umts",
	ModeForceGPRS:  "force-gprs",
	ModePreferUMTS: "prefer-umts",
	ModePreferGPRS: "prefer-gprs",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= NumModes {
		return "invalid"
	}
	return modeNames[m]
}

// ParseMode maps a mode name back to its Mode. Unknown names map to
// ModeInvalid.
func ParseMode(s string) Mode {
	for i, name := range modeNames {
		if s == name {
			return Mode(i)
		}
	}
	return ModeInvalid
}

// Profile selects a class of devices and describes how to use them.
// A zero Vendor, zero Device or empty Driver acts as a wildcard.
// Profiles are immutable after registration.
type Profile struct {
	Name   string
	Vendor uint16
	Device uint16
	Driver string

	// Control and Data index into the ordered list of serial endpoints
	// the modem exposes.
	Control int
	Data    int

	// ModeCmd maps each supported mode to the command configuring it.
	// A missing entry means the device does not support that mode; an
	// empty string means the mode needs no command.
	ModeCmd map[Mode]string
}

// Matches reports whether every set selector field of the profile
// equals the candidate's corresponding field.
func (p *Profile) Matches(vendor, device uint16, driver string) bool {
	if p.Vendor != 0 && p.Vendor != vendor {
		return false
	}
	if p.Device != 0 && p.Device != device {
		return false
	}
	if p.Driver != "" && p.Driver != driver {
		return false
	}
	return true
}

// Modes returns the modes the profile supports, in mode order.
func (p *Profile) Modes() []Mode {
	var modes []Mode
	for m := ModeAuto; int(m) < NumModes; m++ {
		if _, ok := p.ModeCmd[m]; ok {
			modes = append(modes, m)
		}
	}
	return modes
}

// Registry is an ordered sequence of profiles. Matching walks the list
// front to back; user-supplied profiles are prepended so they shadow
// the built-ins.
type Registry struct {
	profiles []*Profile
}

// NewRegistry builds a registry of the given user profiles followed by
// the built-in table.
func NewRegistry(user ...*Profile) *Registry {
	r := &Registry{}
	r.profiles = append(r.profiles, user...)
	r.profiles = append(r.profiles, builtin...)
	return r
}

// Match returns the first profile matching the candidate, or nil.
func (r *Registry) Match(vendor, device uint16, driver string) *Profile {
	for _, p := range r.profiles {
		if p.Matches(vendor, device, driver) {
			return p
		}
	}
	return nil
}

// ByName returns the profile with the given name, or nil.
func (r *Registry) ByName(name string) *Profile {
	for _, p := range r.profiles {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// All returns the registered profiles in matching order.
func (r *Registry) All() []*Profile {
	return r.profiles
}
