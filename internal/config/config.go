package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dbehnke/mumodem/internal/logging"
	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config represents the mumodemd configuration
type Config struct {
	filename  string
	undecoded []string

	Serial   SerialSection   `toml:"serial"`
	Modem    ModemSection    `toml:"modem"`
	Database DatabaseSection `toml:"database"`
	API      APISection      `toml:"api"`
	Log      LogSection      `toml:"log"`
}

// SerialSection is the UART the modem is attached to
type SerialSection struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

// ModemSection configures the modem core
type ModemSection struct {
	FrequencyModel     string          `toml:"frequency_model"`
	Mode               string          `toml:"mode"`
	CommandTimeoutMS   int             `toml:"command_timeout_ms"`
	BufferSize         int             `toml:"buffer_size"`
	UnsolicitedQueue   int             `toml:"unsolicited_queue"`
	RssiScanIntervalMS int             `toml:"rssi_scan_interval_ms"`
	Channel            int             `toml:"channel"`
	AddRssi            bool            `toml:"add_rssi"`
	AddressWidth429    int             `toml:"address_width_429"`
	AddressWidth1216   int             `toml:"address_width_1216"`
	Families           []FamilySection `toml:"families"`
}

// FamilySection adds or overrides one response family
type FamilySection struct {
	Prefix  string `toml:"prefix"`
	Kind    string `toml:"kind"`
	Framing string `toml:"framing"`
}

// DatabaseSection configures the packet store
type DatabaseSection struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// APISection configures the HTTP status API
type APISection struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// LogSection configures logging
type LogSection struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// NewConfig creates a new configuration instance with defaults
func NewConfig(filename string) *Config {
	return &Config{
		filename: filename,
		Serial: SerialSection{
			Port: "/dev/ttyUSB0",
			Baud: protocol.MU_DEFAULT_BAUD,
		},
		Modem: ModemSection{
			FrequencyModel:     "429",
			Mode:               "cmd",
			CommandTimeoutMS:   int(protocol.MU_DEFAULT_TIMEOUT / time.Millisecond),
			BufferSize:         protocol.MU_FRAME_BUFFER_SIZE,
			UnsolicitedQueue:   protocol.MU_UNSOLICITED_QUEUE,
			RssiScanIntervalMS: 0,
			Channel:            0,
			AddRssi:            true,
			AddressWidth429:    protocol.MU_429_ADDRESS_WIDTH,
			AddressWidth1216:   protocol.MU_1216_ADDRESS_WIDTH,
		},
		Database: DatabaseSection{
			Enabled: false,
			Path:    "mumodem.db",
		},
		API: APISection{
			Enabled: false,
			Addr:    "127.0.0.1:8080",
		},
		Log: LogSection{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads the configuration file over the defaults
func (c *Config) Load() error {
	meta, err := toml.DecodeFile(c.filename, c)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", c.filename, err)
	}
	c.recordUndecoded(meta)
	return c.Validate()
}

// LoadFromString decodes configuration text over the defaults
func (c *Config) LoadFromString(data string) error {
	meta, err := toml.Decode(data, c)
	if err != nil {
		return fmt.Errorf("config decode failed: %w", err)
	}
	c.recordUndecoded(meta)
	return c.Validate()
}

func (c *Config) recordUndecoded(meta toml.MetaData) {
	c.undecoded = c.undecoded[:0]
	for _, key := range meta.Undecoded() {
		c.undecoded = append(c.undecoded, key.String())
	}
}

// Undecoded lists keys present in the file that no field consumed
func (c *Config) Undecoded() []string {
	return c.undecoded
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("%w: serial.port is required", ErrInvalid)
	}
	if _, ok := protocol.MU_BAUD_CODES[c.Serial.Baud]; !ok {
		return fmt.Errorf("%w: serial.baud %d is not a modem baud rate", ErrInvalid, c.Serial.Baud)
	}

	model, err := protocol.ParseFrequencyModel(c.Modem.FrequencyModel)
	if err != nil {
		return fmt.Errorf("%w: modem.frequency_model: %v", ErrInvalid, err)
	}
	if _, err := protocol.ParseMode(c.Modem.Mode); err != nil {
		return fmt.Errorf("%w: modem.mode: %v", ErrInvalid, err)
	}
	if c.Modem.CommandTimeoutMS <= 0 {
		return fmt.Errorf("%w: modem.command_timeout_ms must be positive", ErrInvalid)
	}
	if c.Modem.BufferSize <= 0 {
		return fmt.Errorf("%w: modem.buffer_size must be positive", ErrInvalid)
	}
	if c.Modem.UnsolicitedQueue <= 0 {
		return fmt.Errorf("%w: modem.unsolicited_queue must be positive", ErrInvalid)
	}
	if c.Modem.RssiScanIntervalMS < 0 {
		return fmt.Errorf("%w: modem.rssi_scan_interval_ms cannot be negative", ErrInvalid)
	}
	if c.Modem.Channel != 0 {
		if c.Modem.Channel > 0xFF || !model.ValidChannel(uint8(c.Modem.Channel)) {
			lo, hi := model.ChannelRange()
			return fmt.Errorf("%w: modem.channel 0x%02X outside 0x%02X..0x%02X for %s",
				ErrInvalid, c.Modem.Channel, lo, hi, model)
		}
	}
	if c.Modem.AddressWidth429 < 0 || c.Modem.AddressWidth1216 < 0 {
		return fmt.Errorf("%w: address widths cannot be negative", ErrInvalid)
	}
	if _, err := c.Families(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Database.Enabled && strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required when the database is enabled", ErrInvalid)
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("%w: api.addr is required when the API is enabled", ErrInvalid)
	}
	return nil
}

// Filename returns the path the configuration was loaded from
func (c *Config) Filename() string { return c.filename }

// SerialPort returns the serial device path
func (c *Config) SerialPort() string { return c.Serial.Port }

// SerialBaud returns the UART baud rate
func (c *Config) SerialBaud() int { return c.Serial.Baud }

// FrequencyModel returns the configured radio variant
func (c *Config) FrequencyModel() protocol.FrequencyModel {
	model, _ := protocol.ParseFrequencyModel(c.Modem.FrequencyModel)
	return model
}

// Mode returns the startup framing mode
func (c *Config) Mode() protocol.Mode {
	mode, _ := protocol.ParseMode(c.Modem.Mode)
	return mode
}

// CommandTimeout returns the default command deadline
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Modem.CommandTimeoutMS) * time.Millisecond
}

// RssiScanInterval returns the all-channel scan period, zero when disabled
func (c *Config) RssiScanInterval() time.Duration {
	return time.Duration(c.Modem.RssiScanIntervalMS) * time.Millisecond
}

// Channel returns the channel to select at startup and whether one is set
func (c *Config) Channel() (uint8, bool) {
	if c.Modem.Channel == 0 {
		return 0, false
	}
	return uint8(c.Modem.Channel), true
}

// Layouts returns the binary frame layouts for both models
func (c *Config) Layouts() parser.Layouts {
	return parser.Layouts{
		protocol.MHz429:  {AddressWidth: c.Modem.AddressWidth429},
		protocol.MHz1216: {AddressWidth: c.Modem.AddressWidth1216},
	}
}

// Families returns the default family table with config overrides applied
func (c *Config) Families() (*parser.FamilyTable, error) {
	table := parser.DefaultFamilies()
	for i, f := range c.Modem.Families {
		kind, err := protocol.ParseResponseKind(strings.TrimSpace(f.Kind))
		if err != nil {
			return nil, fmt.Errorf("modem.families[%d]: %w", i, err)
		}
		framing, err := parser.ParseFraming(f.Framing)
		if err != nil {
			return nil, fmt.Errorf("modem.families[%d]: %w", i, err)
		}
		family := parser.Family{
			Prefix:  strings.ToUpper(strings.TrimSpace(f.Prefix)),
			Kind:    kind,
			Framing: framing,
		}
		if err := table.Register(family); err != nil {
			return nil, fmt.Errorf("modem.families[%d]: %w", i, err)
		}
	}
	return table, nil
}

// LogConfig returns the logging settings
func (c *Config) LogConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Console: c.Log.Console}
}

// DatabaseEnabled reports whether received packets are stored
func (c *Config) DatabaseEnabled() bool { return c.Database.Enabled }

// DatabasePath returns the SQLite file path
func (c *Config) DatabasePath() string { return c.Database.Path }

// APIEnabled reports whether the HTTP API is served
func (c *Config) APIEnabled() bool { return c.API.Enabled }

// APIAddr returns the HTTP listen address
func (c *Config) APIAddr() string { return c.API.Addr }

// CorsOrigins returns the allowed CORS origins, empty allows none
func (c *Config) CorsOrigins() []string { return c.API.CorsOrigins }
