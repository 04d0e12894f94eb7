// ABOUTME: Entry point for the cf-station ground-station client.
// ABOUTME: Connects the configured agents and drives them from the terminal.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/config"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/logging"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/station"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        __           _        _   _
   ___ / _|     ___ | |_ __ _| |_(_) ___  _ __
  / __| |_ ____/ __|| __/ _' | __| |/ _ \| '_ \
 | (__|  _|____\__ \| || (_| | |_| | (_) | | | |
  \___|_|      |___/ \__\__,_|\__|_|\___/|_| |_|
`

// getConfigPath returns the path to the station config file.
// Priority: CF_STATION_CONFIG env var > XDG_CONFIG_HOME/cf-station/config.json
// > ~/.config/cf-station/config.json
func getConfigPath() string {
	if envPath := os.Getenv("CF_STATION_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.json" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cf-station", "config.json")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cf-station <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  monitor   Connect all agents and stream their telemetry")
		fmt.Println("  fly       Connect all agents, take off, land on Ctrl-C")
		fmt.Println("  agents    Show the configured agent roster")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "monitor":
		err = runStation(ctx, false)
	case "fly":
		err = runStation(ctx, true)
	case "agents":
		err = runAgents()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStation(ctx context.Context, fly bool) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Mode:    %s\n", cfg.TransportMode())
	green.Print("    ▶ ")
	fmt.Printf("Map:     %s %gx%g m\n", cfg.MapSetting, cfg.MapWidth, cfg.MapDepth)
	green.Print("    ▶ ")
	fmt.Printf("Agents:  %d\n\n", len(cfg.Roster))

	s, err := station.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating station: %w", err)
	}

	telemetry, _ := s.SubscribeTelemetry(ctx)
	states, _ := s.SubscribeStates(ctx)

	if err := s.ConnectAll(ctx); err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("connecting agents: %w", err)
	}

	if fly {
		for _, id := range s.Identities() {
			if err := s.Takeoff(id.URI); err != nil {
				logger.Error("takeoff failed", "uri", id.URI, "error", err)
			}
		}
	}

	printTelemetry(ctx, s, telemetry, states)

	if fly {
		for _, id := range s.Identities() {
			if err := s.Land(id.URI); err != nil {
				logger.Warn("landing on shutdown failed", "uri", id.URI, "error", err)
			}
		}
		// Let the landing commands reach the agents.
		time.Sleep(500 * time.Millisecond)
	}

	return s.Shutdown()
}

func printTelemetry(ctx context.Context, s *station.Station, telemetry <-chan station.TelemetryNotice, states <-chan agent.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return

		case n := <-telemetry:
			tint := colorFor(n.Identity.Color)
			switch ev := n.Event.(type) {
			case agent.PositionUpdate:
				marker := ""
				if ev.Stale {
					marker = " (stale)"
				}
				tint.Printf("%-30s", n.Identity.URI)
				fmt.Printf(" pos  x=%6.2f y=%6.2f z=%5.2f%s\n", ev.X, ev.Y, ev.Z, marker)
			case agent.DebugLine:
				tint.Printf("%-30s", n.Identity.URI)
				fmt.Printf(" con  %s\n", ev.Text)
			case agent.BatteryUpdate:
				tint.Printf("%-30s", n.Identity.URI)
				fmt.Printf(" bat  %.2f V\n", ev.Voltage)
			}

		case c := <-states:
			tint := colorFor(c.Identity.Color)
			tint.Printf("%-30s", c.Identity.URI)
			fmt.Printf(" >>>  %s\n", c.State.Conn)
		}
	}
}

func runAgents() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Printf("%d agent(s) configured:\n\n", len(cfg.Roster))
	for i, spec := range cfg.Roster {
		tint := colorFor(agent.PaletteColor(i))
		tint.Printf("  %-30s", spec.URI)
		fmt.Printf(" %#016x\n", spec.Address)
	}
	return nil
}

func colorFor(name string) *color.Color {
	switch name {
	case "green":
		return color.New(color.FgGreen)
	case "red":
		return color.New(color.FgRed)
	case "blue":
		return color.New(color.FgBlue)
	case "yellow":
		return color.New(color.FgYellow)
	case "cyan":
		return color.New(color.FgCyan)
	case "magenta":
		return color.New(color.FgMagenta)
	case "higreen":
		return color.New(color.FgHiGreen)
	case "hired":
		return color.New(color.FgHiRed)
	default:
		return color.New(color.Reset)
	}
}
