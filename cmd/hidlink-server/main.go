// Command hidlink-server is the HID link acceptance daemon.
//
// It listens on the control and interrupt endpoints, registers channels
// from known peripherals, and runs every interrupt connection through
// the two-tier authorization flow: an in-process agent first, then the
// remote policy service when the agent is unavailable.
//
// Usage:
//
//	hidlink-server [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-control string       Control endpoint listen address (default ":17017")
//	-interrupt string     Interrupt endpoint listen address (default ":17019")
//	-adapter string       Adapter address, e.g. "AA:BB:CC:DD:EE:FF" (required)
//	-devices string       Known-device state file path
//	-policy string        Policy service address (enables the fallback tier)
//	-auth-mode string     Agent mode: grant, deny, policy (default "grant")
//	-auth-timeout dur     Policy request timeout (default 30s)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-log-file string      Protocol event log file (CBOR)
//
// Examples:
//
//	# Accept every known device without asking anyone
//	hidlink-server -adapter AA:BB:CC:DD:EE:FF
//
//	# Defer all decisions to a policy service
//	hidlink-server -adapter AA:BB:CC:DD:EE:FF -auth-mode policy -policy policy.local:9217
//
//	# Run from a config file
//	hidlink-server -config /etc/hidlink/server.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/auth"
	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	hidlog "github.com/hidlink-protocol/hidlink-go/pkg/log"
	"github.com/hidlink-protocol/hidlink-go/pkg/policy"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
	"github.com/hidlink-protocol/hidlink-go/pkg/server"
)

// Config holds the daemon configuration.
type Config struct {
	ConfigFile       string
	ControlAddress   string
	InterruptAddress string
	AdapterAddress   string
	DeviceFile       string
	PolicyAddress    string
	AuthMode         string
	AuthTimeout      time.Duration
	LogLevel         string
	LogFile          string
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.ControlAddress, "control", ":17017", "Control endpoint listen address")
	flag.StringVar(&config.InterruptAddress, "interrupt", ":17019", "Interrupt endpoint listen address")
	flag.StringVar(&config.AdapterAddress, "adapter", "", "Adapter address, e.g. AA:BB:CC:DD:EE:FF")
	flag.StringVar(&config.DeviceFile, "devices", "", "Known-device state file path")
	flag.StringVar(&config.PolicyAddress, "policy", "", "Policy service address")
	flag.StringVar(&config.AuthMode, "auth-mode", "grant", "Agent mode: grant, deny, policy")
	flag.DurationVar(&config.AuthTimeout, "auth-timeout", 30*time.Second, "Policy request timeout")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", "", "Protocol event log file (CBOR)")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		fileCfg, err := LoadFileConfig(config.ConfigFile)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		setFlags := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
		fileCfg.merge(&config, setFlags)

		// Known devices from the config file are provisioned below.
		knownFromFile = fileCfg.KnownDevices
	}

	setupLogging(config.LogLevel)

	log.Println("HID Link Server")
	log.Println("===============")
	log.Printf("Control endpoint:   %s", config.ControlAddress)
	log.Printf("Interrupt endpoint: %s", config.InterruptAddress)
	log.Printf("Auth mode:          %s", config.AuthMode)

	adapter, err := hid.ParseDeviceAddress(config.AdapterAddress)
	if err != nil {
		log.Fatalf("Invalid adapter address %q: %v", config.AdapterAddress, err)
	}

	protoLogger, closeLogger, err := buildProtocolLogger()
	if err != nil {
		log.Fatalf("Failed to set up protocol logging: %v", err)
	}
	defer closeLogger()

	// Device registry, seeded from the config file and the state file.
	reg := registry.NewManager()
	for _, kd := range knownFromFile {
		addr, err := hid.ParseDeviceAddress(kd.Address)
		if err != nil {
			log.Fatalf("Invalid known device address %q: %v", kd.Address, err)
		}
		if err := reg.AddDevice(addr, kd.Name); err != nil {
			log.Printf("Warning: device %s: %v", kd.Address, err)
		}
	}

	var store *registry.Store
	if config.DeviceFile != "" {
		store = registry.NewStore(config.DeviceFile)
		if err := store.LoadInto(reg); err != nil {
			log.Fatalf("Failed to load device state: %v", err)
		}
	}
	log.Printf("Known devices: %d", len(reg.KnownDevices()))

	reg.OnDeviceConnected(func(src, dst hid.DeviceAddress) {
		log.Printf("[EVENT] Device connected: %s", dst)
	})
	reg.OnDeviceDisconnected(func(src, dst hid.DeviceAddress) {
		log.Printf("[EVENT] Device disconnected: %s", dst)
	})

	agent, err := buildAgent(config.AuthMode)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	svc, err := server.NewService(server.Config{
		ControlAddress:   config.ControlAddress,
		InterruptAddress: config.InterruptAddress,
		LocalAddr:        adapter,
		Logger:           protoLogger,
	}, reg, agent)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Policy service client (fallback authorization tier).
	var policyClient *policy.Client
	if config.PolicyAddress != "" {
		policyClient, err = policy.NewClient(policy.ClientConfig{
			Address:        config.PolicyAddress,
			RequestTimeout: config.AuthTimeout,
			Logger:         protoLogger,
		})
		if err != nil {
			log.Fatalf("Failed to create policy client: %v", err)
		}
		if err := policyClient.Connect(ctx); err != nil {
			log.Fatalf("Failed to connect to policy service: %v", err)
		}
		log.Printf("Policy service: %s", config.PolicyAddress)
	}

	if err := startService(ctx, svc, policyClient); err != nil {
		if policyClient != nil {
			policyClient.Close()
		}
		log.Fatalf("Failed to start service: %v", err)
	}
	log.Printf("Service started (control %s, interrupt %s)", svc.ControlAddr(), svc.InterruptAddr())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	if err := svc.Stop(); err != nil {
		log.Printf("Error stopping service: %v", err)
	}
	if policyClient != nil {
		if err := policyClient.Close(); err != nil {
			log.Printf("Error closing policy client: %v", err)
		}
	}

	if store != nil {
		log.Println("Saving device state...")
		if err := store.Save(reg.KnownDevices()); err != nil {
			log.Printf("Warning: failed to save device state: %v", err)
		}
	}

	log.Println("Goodbye!")
}

// knownFromFile holds pre-provisioned peripherals from the config file.
var knownFromFile []KnownDevice

// startService narrows the policy client to the broker interface while
// keeping a typed nil out of it.
func startService(ctx context.Context, svc *server.Service, client *policy.Client) error {
	if client == nil {
		return svc.Start(ctx, nil)
	}
	return svc.Start(ctx, client)
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// buildProtocolLogger assembles the protocol event logger: console via
// slog at debug level, plus the CBOR event file when configured.
func buildProtocolLogger() (hidlog.Logger, func(), error) {
	var loggers []hidlog.Logger

	if config.LogLevel == "debug" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, hidlog.NewSlogAdapter(slog.New(handler)))
	}

	closeLogger := func() {}
	if config.LogFile != "" {
		fileLogger, err := hidlog.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fileLogger)
		closeLogger = func() { fileLogger.Close() }
	}

	switch len(loggers) {
	case 0:
		return &hidlog.NoopLogger{}, closeLogger, nil
	case 1:
		return loggers[0], closeLogger, nil
	default:
		return hidlog.NewMultiLogger(loggers...), closeLogger, nil
	}
}

// buildAgent creates the in-process authorization agent for the
// configured mode. Mode "policy" makes the agent unavailable so every
// decision falls through to the policy service.
func buildAgent(mode string) (auth.Agent, error) {
	switch mode {
	case "grant":
		return &auth.FuncAgent{
			Decide: func(src, dst hid.DeviceAddress, serviceID string) error {
				return nil
			},
		}, nil
	case "deny":
		return &auth.FuncAgent{
			Decide: func(src, dst hid.DeviceAddress, serviceID string) error {
				return auth.ErrDenied
			},
		}, nil
	case "policy":
		return &auth.FuncAgent{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", mode)
	}
}
