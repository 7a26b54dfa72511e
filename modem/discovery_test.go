package modem_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/umtsd/udiald/modem"
	"github.com/umtsd/udiald/profile"
)

func mkDevice(t *testing.T, root, id, vendor, product string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "idVendor"), []byte(vendor+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "idProduct"), []byte(product+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mkInterface(t *testing.T, root, id, driver string, ttys ...string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if driver != "" {
		if err := os.Symlink("/sys/bus/usb-serial/drivers/"+driver, filepath.Join(dir, "driver")); err != nil {
			t.Fatal(err)
		}
	}
	for _, tty := range ttys {
		if err := os.MkdirAll(filepath.Join(dir, tty), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

// huaweiSysfs builds a fixture tree with a Huawei K3520 exposing three
// serial endpoints across three interfaces.
func huaweiSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mkDevice(t, root, "1-1.2", "12d1", "1001")
	mkInterface(t, root, "1-1.2:1.0", "option", "ttyUSB0")
	mkInterface(t, root, "1-1.2:1.1", "option", "ttyUSB1")
	mkInterface(t, root, "1-1.2:1.2", "option", "ttyUSB2")
	return root
}

func newDiscoverer(root string) *modem.Discoverer {
	return &modem.Discoverer{SysfsRoot: root, Registry: profile.NewRegistry()}
}

func TestDiscoveryFind(t *testing.T) {
	t.Run("Binds profile and resolves endpoints", func(t *testing.T) {
		d := newDiscoverer(huaweiSysfs(t))

		h, err := d.Find(&modem.Filter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.Vendor != 0x12d1 || h.Device != 0x1001 {
			t.Errorf("identity = %04x:%04x", h.Vendor, h.Device)
		}
		if h.DeviceID != "1-1.2" {
			t.Errorf("device id = %q", h.DeviceID)
		}
		if h.Driver != "option" {
			t.Errorf("driver = %q", h.Driver)
		}
		if h.Profile == nil || h.Profile.Name != "Huawei K3520" {
			t.Fatalf("profile = %v", h.Profile)
		}
		// K3520: control index 2, data index 0.
		if h.ControlTTY != "ttyUSB2" || h.DataTTY != "ttyUSB0" {
			t.Errorf("endpoints = control %q, data %q", h.ControlTTY, h.DataTTY)
		}
	})

	t.Run("No modem attached", func(t *testing.T) {
		d := newDiscoverer(t.TempDir())
		if _, err := d.Find(&modem.Filter{}); !errors.Is(err, modem.ErrNoModem) {
			t.Errorf("expected ErrNoModem, got: %v", err)
		}
	})

	t.Run("Endpoint index out of range", func(t *testing.T) {
		root := t.TempDir()
		mkDevice(t, root, "2-1", "0bdb", "1900")
		mkInterface(t, root, "2-1:1.0", "cdc_acm", "tty") // no endpoints inside
		mkInterface(t, root, "2-1:1.1", "cdc_acm", "ttyACM0")

		// Ericsson F3705G wants control index 1 but only one endpoint
		// is exposed.
		d := newDiscoverer(root)
		_, err := d.Find(&modem.Filter{})
		if !errors.Is(err, modem.ErrBadEndpointIndex) {
			t.Errorf("expected ErrBadEndpointIndex, got: %v", err)
		}
	})

	t.Run("Unknown forced profile", func(t *testing.T) {
		d := newDiscoverer(huaweiSysfs(t))
		_, err := d.Find(&modem.Filter{ProfileName: "no such profile"})
		if !errors.Is(err, modem.ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got: %v", err)
		}
	})
}

func TestDiscoveryList(t *testing.T) {
	root := huaweiSysfs(t)
	mkDevice(t, root, "1-1.3", "19d2", "0001")
	mkInterface(t, root, "1-1.3:1.0", "zte_ev", "ttyUSB3", "ttyUSB4", "ttyUSB5")
	// A hub exposes no serial endpoints and is not a candidate.
	mkDevice(t, root, "usb1", "1d6b", "0002")

	d := newDiscoverer(root)

	t.Run("All candidates in enumeration order", func(t *testing.T) {
		handles, err := d.List(&modem.Filter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(handles))
		}
		if handles[0].DeviceID != "1-1.2" || handles[1].DeviceID != "1-1.3" {
			t.Errorf("order = %q, %q", handles[0].DeviceID, handles[1].DeviceID)
		}
	})

	t.Run("Vendor and device filter", func(t *testing.T) {
		handles, err := d.List(&modem.Filter{Vendor: 0x19d2, MatchVendor: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 1 || handles[0].DeviceID != "1-1.3" {
			t.Errorf("unexpected handles: %v", handles)
		}

		handles, err = d.List(&modem.Filter{Device: 0xffff, MatchDevice: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 0 {
			t.Errorf("expected no match, got %d", len(handles))
		}
	})

	t.Run("Device id filter", func(t *testing.T) {
		handles, err := d.List(&modem.Filter{DeviceID: "1-1.3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 1 || handles[0].DeviceID != "1-1.3" {
			t.Errorf("unexpected handles: %v", handles)
		}
	})

	t.Run("Require profile rejects unprofiled devices", func(t *testing.T) {
		root := t.TempDir()
		mkDevice(t, root, "3-1", "dead", "beef")
		mkInterface(t, root, "3-1:1.0", "nosuchdriver", "ttyUSB0")

		d := newDiscoverer(root)
		handles, err := d.List(&modem.Filter{RequireProfile: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 0 {
			t.Errorf("expected no usable device, got %d", len(handles))
		}

		handles, err = d.List(&modem.Filter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(handles) != 1 {
			t.Errorf("expected unprofiled device to be listed, got %d", len(handles))
		}
	})
}

func TestDiscoveryNestedTTY(t *testing.T) {
	// cdc_acm nests its endpoints under a tty/ subdirectory.
	root := t.TempDir()
	mkDevice(t, root, "4-1", "0bdb", "1900")
	mkInterface(t, root, "4-1:1.0", "cdc_acm")
	for _, tty := range []string{"ttyACM0", "ttyACM1"} {
		if err := os.MkdirAll(filepath.Join(root, "4-1:1.1", "tty", tty), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("/sys/bus/usb/drivers/cdc_acm", filepath.Join(root, "4-1:1.1", "driver")); err != nil {
		t.Fatal(err)
	}

	d := newDiscoverer(root)
	h, err := d.Find(&modem.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.TTYs) != 2 || h.TTYs[0] != "ttyACM0" || h.TTYs[1] != "ttyACM1" {
		t.Errorf("ttys = %q", h.TTYs)
	}
	// Ericsson F3705G: control 1, data 0.
	if h.ControlTTY != "ttyACM1" || h.DataTTY != "ttyACM0" {
		t.Errorf("endpoints = control %q, data %q", h.ControlTTY, h.DataTTY)
	}
}
