package modem

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/umtsd/udiald/profile"
)

// DefaultSysfsRoot is where the kernel lists USB devices and their
// interfaces.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

var (
	// ErrNoModem is returned when no attached device passes the filter.
	ErrNoModem = errors.New("no usable modem found")

	// ErrBadEndpointIndex is returned when a profile's control or data
	// index points past the modem's list of serial endpoints.
	ErrBadEndpointIndex = errors.New("profile endpoint index out of range")

	// ErrUnknownProfile is returned when a forced profile name is not
	// registered.
	ErrUnknownProfile = errors.New("no such profile")
)

// Filter restricts which devices discovery considers. Each field is
// independently set or unset; all set fields must match.
type Filter struct {
	Vendor      uint16
	Device      uint16
	MatchVendor bool
	MatchDevice bool

	// DeviceID selects a single device by its topology id (e.g. "1-1.2").
	DeviceID string
	// ProfileName forces the named profile instead of autodetection.
	ProfileName string
	// RequireProfile rejects devices without a matching profile.
	RequireProfile bool
}

// Handle is a concrete selected modem: its USB identity, the serial
// endpoints it exposes, and the configuration profile bound to it.
type Handle struct {
	Vendor   uint16
	Device   uint16
	Driver   string
	DeviceID string

	// TTYs is the ordered list of serial endpoints the device exposes.
	TTYs []string
	// ControlTTY and DataTTY are the endpoints selected by the bound
	// profile's indices. Resolved by Find; left empty in the handles
	// returned by List.
	ControlTTY string
	DataTTY    string

	Profile *profile.Profile
}

// Discoverer enumerates candidate modems from the USB device tree.
type Discoverer struct {
	// SysfsRoot overrides DefaultSysfsRoot, mainly for tests.
	SysfsRoot string
	Registry  *profile.Registry
	Log       *slog.Logger
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Discoverer) root() string {
	if d.SysfsRoot != "" {
		return d.SysfsRoot
	}
	return DefaultSysfsRoot
}

// List returns every attached modem passing the filter, in enumeration
// order. A device counts as a modem when it exposes at least one serial
// endpoint. Profiles are bound where available; endpoint names are left
// unresolved.
func (d *Discoverer) List(f *Filter) ([]*Handle, error) {
	entries, err := os.ReadDir(d.root())
	if err != nil {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	var forced *profile.Profile
	if f != nil && f.ProfileName != "" {
		if forced = d.Registry.ByName(f.ProfileName); forced == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, f.ProfileName)
		}
	}

	var handles []*Handle
	for _, e := range entries {
		name := e.Name()
		if strings.ContainsRune(name, ':') {
			continue // interface, not a device
		}
		h, ok := d.examine(name)
		if !ok {
			continue
		}
		if f != nil {
			if f.MatchVendor && f.Vendor != h.Vendor {
				continue
			}
			if f.MatchDevice && f.Device != h.Device {
				continue
			}
			if f.DeviceID != "" && f.DeviceID != h.DeviceID {
				continue
			}
		}
		if forced != nil {
			h.Profile = forced
		} else {
			h.Profile = d.Registry.Match(h.Vendor, h.Device, h.Driver)
		}
		if f != nil && f.RequireProfile && h.Profile == nil {
			d.logger().Debug("no configuration profile", "device", h.DeviceID)
			continue
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Find selects the first modem passing the filter and resolves the
// bound profile's endpoint indices into TTY names.
func (d *Discoverer) Find(f *Filter) (*Handle, error) {
	handles, err := d.List(f)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, ErrNoModem
	}
	h := handles[0]
	if h.Profile != nil {
		if err := h.resolve(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Handle) resolve() error {
	if h.Profile.Control >= len(h.TTYs) || h.Profile.Data >= len(h.TTYs) {
		return fmt.Errorf("%w: %s needs control %d, data %d but %s exposes %d endpoints",
			ErrBadEndpointIndex, h.Profile.Name, h.Profile.Control, h.Profile.Data, h.DeviceID, len(h.TTYs))
	}
	h.ControlTTY = h.TTYs[h.Profile.Control]
	h.DataTTY = h.TTYs[h.Profile.Data]
	return nil
}

// examine inspects one sysfs device directory and builds a Handle when
// it looks like a modem.
func (d *Discoverer) examine(name string) (*Handle, bool) {
	dir := filepath.Join(d.root(), name)
	vendor, err := readHexWord(filepath.Join(dir, "idVendor"))
	if err != nil {
		return nil, false
	}
	device, err := readHexWord(filepath.Join(dir, "idProduct"))
	if err != nil {
		return nil, false
	}

	h := &Handle{Vendor: vendor, Device: device, DeviceID: name}

	// Serial endpoints and the kernel driver are attributes of the
	// device's interfaces, listed as sibling entries "<id>:<cfg>.<if>".
	ifaces, _ := filepath.Glob(filepath.Join(d.root(), name+":*"))
	sort.Strings(ifaces)
	for _, iface := range ifaces {
		ttys := interfaceTTYs(iface)
		if len(ttys) == 0 {
			continue
		}
		h.TTYs = append(h.TTYs, ttys...)
		if h.Driver == "" {
			if target, err := os.Readlink(filepath.Join(iface, "driver")); err == nil {
				h.Driver = filepath.Base(target)
			}
		}
	}
	if len(h.TTYs) == 0 {
		return nil, false
	}
	sortTTYs(h.TTYs)
	return h, true
}

// interfaceTTYs lists the serial character devices an interface
// exposes. usb-serial drivers put ttyUSB* directly into the interface
// directory; cdc_acm nests ttyACM* under a tty/ subdirectory.
func interfaceTTYs(iface string) []string {
	var ttys []string
	entries, err := os.ReadDir(iface)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		n := e.Name()
		switch {
		case strings.HasPrefix(n, "ttyUSB") || strings.HasPrefix(n, "ttyACM") || strings.HasPrefix(n, "ttyHS"):
			ttys = append(ttys, n)
		case n == "tty":
			sub, err := os.ReadDir(filepath.Join(iface, "tty"))
			if err != nil {
				continue
			}
			for _, s := range sub {
				ttys = append(ttys, s.Name())
			}
		}
	}
	return ttys
}

// sortTTYs orders endpoint names by their numeric suffix so the
// profile indices are stable (ttyUSB10 after ttyUSB2).
func sortTTYs(ttys []string) {
	sort.Slice(ttys, func(i, j int) bool {
		pi, ni := splitTTY(ttys[i])
		pj, nj := splitTTY(ttys[j])
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
}

func splitTTY(name string) (prefix string, num int) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(name[i:])
	return name[:i], n
}

func readHexWord(path string) (uint16, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
