// ABOUTME: Configuration loading and validation for the ground station.
// ABOUTME: Reads the JSON config via viper with environment overrides.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/intmap"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

// ErrInvalid indicates a configuration that fails validation. It is
// fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Map setting names as they appear in the config file.
const (
	SettingLaboratory = "Laboratory"
	SettingDefault    = "Default"
)

// Config is the validated ground-station configuration.
type Config struct {
	// Mode is the application mode from main.mode.
	Mode string
	// Simulation selects the simulated transport backend.
	Simulation bool

	// MapSetting is Laboratory or Default.
	MapSetting string
	// MapWidth and MapDepth are the flight area extents in meters.
	MapWidth float64
	MapDepth float64

	// Roster lists the configured agents in deterministic order.
	Roster []agent.LinkSpec

	// BridgeAddr is the TCP address of the radio bridge daemon; empty
	// selects the backend default.
	BridgeAddr string

	// LogFile is the rotating log destination, empty for stderr only.
	LogFile string
	// LogLevel is debug, info, warn or error.
	LogLevel string
}

// Load reads and validates the configuration file at path.
// Environment variables override file values, e.g. CF_MAIN_MODE
// overrides main.mode.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("CF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("main.mode", "normal")
	v.SetDefault("main.simulation", "false")
	v.SetDefault("interactiveMap.setting", SettingDefault)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	cfg := &Config{
		Mode:       v.GetString("main.mode"),
		MapSetting: v.GetString("interactiveMap.setting"),
		MapWidth:   v.GetFloat64("interactiveMap.width"),
		MapDepth:   v.GetFloat64("interactiveMap.depth"),
		BridgeAddr: v.GetString("radio.bridge"),
		LogFile:    v.GetString("log.file"),
		LogLevel:   v.GetString("log.level"),
	}

	// main.simulation is historically a string flag.
	sim, err := parseBool(v.GetString("main.simulation"))
	if err != nil {
		return nil, fmt.Errorf("%w: main.simulation: %v", ErrInvalid, err)
	}
	cfg.Simulation = sim

	entries, err := rawRoster(path)
	if err != nil {
		return nil, err
	}
	roster, err := parseRoster(entries)
	if err != nil {
		return nil, err
	}
	cfg.Roster = roster

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.MapSetting {
	case SettingLaboratory, SettingDefault:
	default:
		return fmt.Errorf("%w: interactiveMap.setting %q, want %q or %q",
			ErrInvalid, c.MapSetting, SettingLaboratory, SettingDefault)
	}
	if c.MapWidth <= 0 || c.MapDepth <= 0 {
		return fmt.Errorf("%w: interactiveMap extents %g x %g m", ErrInvalid, c.MapWidth, c.MapDepth)
	}
	if len(c.Roster) > agent.MaxAgents {
		return fmt.Errorf("%w: %d crazyflies configured, max %d", ErrInvalid, len(c.Roster), agent.MaxAgents)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

// rawRoster reads the crazyflies object straight from the JSON
// document. Viper lowercases map keys, which would corrupt the link
// URIs before they reach the radio handshake.
func rawRoster(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}
	var doc struct {
		Crazyflies map[string]string `json:"crazyflies"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return doc.Crazyflies, nil
}

// parseRoster converts the crazyflies uri->address map to an ordered
// roster. Map iteration is unordered, so entries are sorted by
// address to keep color assignment stable across runs.
func parseRoster(entries map[string]string) ([]agent.LinkSpec, error) {
	roster := make([]agent.LinkSpec, 0, len(entries))
	for uri, addr := range entries {
		address, err := strconv.ParseUint(strings.TrimPrefix(addr, "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: crazyflies[%s]: address %q is not hex", ErrInvalid, uri, addr)
		}
		roster = append(roster, agent.LinkSpec{URI: uri, Address: address})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Address < roster[j].Address })
	return roster, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("cannot parse %q as bool", s)
	}
}

// Origin maps the configured setting to a coordinate origin
// convention: Laboratory areas are centered, Default areas have the
// origin in the bottom-left corner.
func (c *Config) Origin() intmap.Origin {
	if c.MapSetting == SettingLaboratory {
		return intmap.OriginCenter
	}
	return intmap.OriginCorner
}

// FlightArea builds the configured flight area.
func (c *Config) FlightArea() (intmap.FlightArea, error) {
	return intmap.NewFlightArea(c.MapWidth, c.MapDepth, c.Origin())
}

// TransportMode selects the transport backend.
func (c *Config) TransportMode() transport.Mode {
	if c.Simulation {
		return transport.ModeSimulated
	}
	return transport.ModeReal
}
