// Command udiald is a UMTS/3G cellular connection manager: it locates
// an attached modem, unlocks and configures it over its control TTY and
// keeps a pppd data session supervised until terminated.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
	"github.com/lmittmann/tint"

	"github.com/umtsd/udiald/modem"
	"github.com/umtsd/udiald/profile"
	"github.com/umtsd/udiald/session"
	"github.com/umtsd/udiald/uci"
)

type options struct {
	Connect      bool `short:"c" long:"connect" description:"Connect using modem (default)"`
	Scan         bool `short:"s" long:"scan" description:"Scan modem and reset state"`
	Probe        bool `long:"probe" description:"Like scan, but do more (debug) probing"`
	UnlockPIN    bool `short:"u" long:"unlock-pin" description:"Same as scan but also try to unlock SIM"`
	UnlockPUK    bool `short:"U" long:"unlock-puk" description:"Reset PIN of locked SIM using PUK (params: <PUK> <PIN>)"`
	Dial         bool `short:"d" long:"dial" description:"Dial (used internally)"`
	ListDevices  bool `short:"l" long:"list-devices" description:"Detect and list usable devices"`
	ListProfiles bool `short:"L" long:"list-profiles" description:"List available configuration profiles"`

	NetworkName string `short:"n" long:"network-name" default:"wan" description:"Use given network name instead of \"wan\""`
	Verbose     []bool `short:"v" long:"verbose" description:"Increase verbosity (once = more info, twice = debug output)"`
	Quiet       []bool `short:"q" long:"quiet" description:"Decrease verbosity (once = warnings and errors only, twice = no output)"`
	Vendor      string `short:"V" long:"vendor" description:"Only consider devices with the given vendor id (in hexadecimal)"`
	Product     string `short:"P" long:"product" description:"Only consider devices with the given product id (in hexadecimal)"`
	DeviceID    string `short:"D" long:"device-id" description:"Only consider the device with the given id (e.g. 1-1.2)"`
	Profile     string `short:"p" long:"profile" description:"Use the profile with the given name instead of autodetecting"`
	PIN         string `long:"pin" description:"Use the given pin, instead of loading it from the config store"`
	Usable      bool   `long:"usable" description:"Only consider devices for which a configuration profile is available"`
	Format      string `short:"f" long:"format" choice:"json" choice:"id" default:"json" description:"Output format for listings"`
	TestState   bool   `short:"t" description:"Test state for previous SIM-unlocking errors before connecting"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[options] [params...]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flags.WroteHelp(err) {
			parser.WriteHelp(os.Stderr)
			return int(session.CodeOK)
		}
		fmt.Fprintln(os.Stderr, err)
		return int(session.CodeInvalidArg)
	}

	verbosity := len(opts.Verbose) - len(opts.Quiet)
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel(verbosity),
	}))
	slog.SetDefault(logger)

	filter := modem.Filter{
		DeviceID:       opts.DeviceID,
		ProfileName:    opts.Profile,
		RequireProfile: opts.Usable,
	}
	if opts.Vendor != "" {
		v, err := parseHexWord(opts.Vendor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse vendor id: %q\n", opts.Vendor)
			return int(session.CodeInvalidArg)
		}
		filter.Vendor, filter.MatchVendor = v, true
	}
	if opts.Product != "" {
		v, err := parseHexWord(opts.Product)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse product id: %q\n", opts.Product)
			return int(session.CodeInvalidArg)
		}
		filter.Device, filter.MatchDevice = v, true
	}

	store := uci.NewClient("network")
	store.Log = logger
	store.AddSection(uci.GlobalSection, "udiald")

	registry := profile.NewRegistry(profile.Load(store)...)

	selected, ok := pickApp(&opts)
	if !ok {
		fmt.Fprintln(os.Stderr, "Conflicting command options")
		return int(session.CodeInvalidArg)
	}

	switch selected {
	case appListProfiles:
		return listProfiles(registry, opts.Format)
	case appListDevices:
		return listDevices(registry, &filter, opts.Format, logger)
	}

	cfg := session.Config{
		App:         selected.sessionApp(),
		NetworkName: opts.NetworkName,
		PIN:         opts.PIN,
		Filter:      filter,
		Registry:    registry,
		Store:       store,
		Verbosity:   verbosity,
		TestState:   opts.TestState,
		Log:         logger,
	}
	if cfg.App == session.AppPUK {
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "unlock-puk needs two params: <PUK> <PIN>")
			return int(session.CodeInvalidArg)
		}
		cfg.PUK, cfg.NewPIN = rest[0], rest[1]
	}

	return int(session.New(cfg).Run())
}

// app covers the session applications plus the local listing modes.
type app int

const (
	appConnect app = iota
	appScan
	appProbe
	appUnlock
	appPUK
	appDial
	appListDevices
	appListProfiles
)

func (a app) sessionApp() session.App {
	switch a {
	case appScan:
		return session.AppScan
	case appProbe:
		return session.AppProbe
	case appUnlock:
		return session.AppUnlock
	case appPUK:
		return session.AppPUK
	case appDial:
		return session.AppDial
	default:
		return session.AppConnect
	}
}

// pickApp resolves the mutually exclusive application flags. At most
// one may be given; none means connect.
func pickApp(o *options) (app, bool) {
	var picked []app
	for _, c := range []struct {
		set bool
		app app
	}{
		{o.Connect, appConnect},
		{o.Scan, appScan},
		{o.Probe, appProbe},
		{o.UnlockPIN, appUnlock},
		{o.UnlockPUK, appPUK},
		{o.Dial, appDial},
		{o.ListDevices, appListDevices},
		{o.ListProfiles, appListProfiles},
	} {
		if c.set {
			picked = append(picked, c.app)
		}
	}
	switch len(picked) {
	case 0:
		return appConnect, true
	case 1:
		return picked[0], true
	default:
		return appConnect, false
	}
}

func logLevel(verbosity int) slog.Level {
	switch {
	case verbosity >= 2:
		return slog.LevelDebug
	case verbosity >= 0:
		return slog.LevelInfo
	case verbosity == -1:
		return slog.LevelWarn
	default:
		return slog.Level(100) // log nothing
	}
}

func parseHexWord(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

type profileListing struct {
	Name    string   `json:"name"`
	Vendor  string   `json:"vendor,omitempty"`
	Product string   `json:"product,omitempty"`
	Driver  string   `json:"driver,omitempty"`
	Control int      `json:"control"`
	Data    int      `json:"data"`
	Modes   []string `json:"modes"`
}

func listProfiles(registry *profile.Registry, format string) int {
	if format == "id" {
		for _, p := range registry.All() {
			fmt.Println(p.Name)
		}
		return int(session.CodeOK)
	}

	var out []profileListing
	for _, p := range registry.All() {
		l := profileListing{
			Name:    p.Name,
			Driver:  p.Driver,
			Control: p.Control,
			Data:    p.Data,
			Modes:   []string{},
		}
		if p.Vendor != 0 {
			l.Vendor = fmt.Sprintf("%04x", p.Vendor)
		}
		if p.Device != 0 {
			l.Product = fmt.Sprintf("%04x", p.Device)
		}
		for _, m := range p.Modes() {
			l.Modes = append(l.Modes, m.String())
		}
		out = append(out, l)
	}
	return emitJSON(out)
}

type deviceListing struct {
	ID      string   `json:"id"`
	Vendor  string   `json:"vendor"`
	Product string   `json:"product"`
	Driver  string   `json:"driver"`
	TTYs    []string `json:"ttys"`
	Profile string   `json:"profile,omitempty"`
}

func listDevices(registry *profile.Registry, filter *modem.Filter, format string, logger *slog.Logger) int {
	d := &modem.Discoverer{Registry: registry, Log: logger}
	handles, err := d.List(filter)
	if err != nil {
		logger.Error("device enumeration failed", "error", err)
		return int(session.CodeInternal)
	}

	if format == "id" {
		for _, h := range handles {
			fmt.Println(h.DeviceID)
		}
		return int(session.CodeOK)
	}

	var out []deviceListing
	for _, h := range handles {
		l := deviceListing{
			ID:      h.DeviceID,
			Vendor:  fmt.Sprintf("%04x", h.Vendor),
			Product: fmt.Sprintf("%04x", h.Device),
			Driver:  h.Driver,
			TTYs:    h.TTYs,
		}
		if h.Profile != nil {
			l.Profile = h.Profile.Name
		}
		out = append(out, l)
	}
	return emitJSON(out)
}

func emitJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	if err := enc.Encode(v); err != nil {
		return int(session.CodeInternal)
	}
	return int(session.CodeOK)
}
