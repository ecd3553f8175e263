package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/api"
	"github.com/dbehnke/mumodem/internal/config"
	"github.com/dbehnke/mumodem/internal/database"
	"github.com/dbehnke/mumodem/internal/logging"
	"github.com/dbehnke/mumodem/internal/metrics"
	"github.com/dbehnke/mumodem/internal/modem"
	"github.com/dbehnke/mumodem/internal/protocol"
	"github.com/dbehnke/mumodem/internal/transport"
)

const VERSION = "1.0.0"

func main() {
	var (
		configFile = flag.String("config", getDefaultConfig(), "Configuration file path")
		version    = flag.Bool("version", false, "Show version information")
		listPorts  = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("mumodemd v%s\n", VERSION)
		return
	}
	if *listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "list ports: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.InitLogger("mumodemd", cfg.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	for _, key := range cfg.Undecoded() {
		logger.Warn().Str("key", key).Msg("unknown configuration key ignored")
	}
	logger.Info().Str("config", *configFile).Str("version", VERSION).Msg("mumodemd starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("mumodemd stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("mumodemd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics.RegisterMetrics()

	families, err := cfg.Families()
	if err != nil {
		return err
	}

	port, err := transport.OpenSerial(transport.SerialConfig{
		Port: cfg.SerialPort(),
		Baud: cfg.SerialBaud(),
	}, logger.With().Str("component", "serial").Logger())
	if err != nil {
		return err
	}
	defer port.Close()

	var (
		packets     PacketSink
		scans       ScanSink
		packetStore api.PacketStore
		rssiStore   api.RssiStore
	)
	if cfg.DatabaseEnabled() {
		db, err := database.NewDB(database.Config{Path: cfg.DatabasePath()}, logging.StdLogger(logger, "database"))
		if err != nil {
			return err
		}
		defer db.Close()
		packetRepo, rssiRepo := db.Packets(), db.Rssi()
		packets, packetStore = packetRepo, packetRepo
		scans, rssiStore = rssiRepo, rssiRepo
	}

	clock := modem.SystemClock{}
	m := modem.New(port, clock, modem.Config{
		Options: modem.Options{
			BufferSize:       cfg.Modem.BufferSize,
			Families:         families,
			Layouts:          cfg.Layouts(),
			Mode:             protocol.FskCmd,
			Model:            cfg.FrequencyModel(),
			UnsolicitedQueue: cfg.Modem.UnsolicitedQueue,
			DefaultTimeout:   cfg.CommandTimeout(),
			Logger:           logger,
		},
		AddRssi: cfg.Modem.AddRssi,
	})

	station := NewStation(m, clock, packets, scans, cfg.RssiScanInterval(),
		logger.With().Str("component", "station").Logger())
	channel, setChannel := cfg.Channel()
	if err := station.Start(ctx, channel, setChannel, cfg.Mode()); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.APIEnabled() {
		server := newAPIServer(cfg, station, packetStore, rssiStore, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("api server failed")
			}
		}()
	}

	err = station.Run(ctx)
	wg.Wait()
	return err
}

// newAPIServer builds the HTTP API reporting this build's version
func newAPIServer(cfg *config.Config, station *Station, packets api.PacketStore, rssi api.RssiStore, logger zerolog.Logger) *api.Server {
	api.Version = VERSION
	return api.NewServer(api.Config{
		Addr:        cfg.APIAddr(),
		CorsOrigins: cfg.CorsOrigins(),
	}, station, packets, rssi, logger.With().Str("component", "api").Logger())
}

// getDefaultConfig returns the default configuration file path
func getDefaultConfig() string {
	if _, err := os.Stat("mumodem.toml"); err == nil {
		return "mumodem.toml"
	}

	systemConfig := "/etc/mumodem.toml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig
	}

	return "mumodem.toml"
}
