// Package config loads the daemon's configuration file and command-line
// overrides, the way the teacher's pkg/app/config does: a Config struct
// decoded from YAML, a FlagConfig sub-struct holding command-line
// overrides, and a NewConfig constructor supplying defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration: the command-line flags in
// Flag and the sections of the YAML configuration file.
type Config struct {
	Flag      FlagConfig      `yaml:"-"`
	Serial    SerialConfig    `yaml:"serial"`
	Channels  ChannelsConfig  `yaml:"channels"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Webserver WebserverConfig `yaml:"webserver"`
	Log       LogConfig       `yaml:"log"`
}

// FlagConfig defines the configured command line flags (parameters):
// poll, test, the config file path and the log level. --version is handled
// by the CLI library and sets no field here; the serial device path is not
// a flag and comes from the config file (Serial.Device).
type FlagConfig struct {
	Test       bool   `yaml:"-"`
	Poll       bool   `yaml:"-"`
	LogLevel   string `json:"LogLevel,omitempty" yaml:"LogLevel,omitempty"`
	ConfigFile string `json:"Config,omitempty" yaml:"Config,omitempty"`
}

// SerialConfig names the serial device backing any channel whose Transport
// is "serial" (spec.md §6.1): opening it, asserting DTR/RTS, and reading
// or waiting on DCD/CTS/DSR.
type SerialConfig struct {
	Device string `yaml:"device"`
	// Poll selects the 5ms modem-status polling loop over TIOCMIWAIT,
	// spec.md §5's polling-mode alternative to the kernel wait primitive.
	Poll bool `yaml:"poll"`
}

// GPIOLineConfig names one GPIO input line an alternative-transport
// channel is wired to.
type GPIOLineConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
	Pull string `yaml:"pull"`
}

// ChannelConfig configures one of the three receiver channels: whether it
// is enabled and how its edges arrive.
type ChannelConfig struct {
	// Station is "dcf77", "msf" or "wwvb". It is validated and marks the
	// channel as enabled; it does not select the decoder, which is chosen
	// by whichever minute marker the classifier detects. For an empty
	// Station the app sets up no thresholds, telemetry, GPIO line or power
	// pin; the channel's serial modem-status bit is still classified and
	// decoded whenever the serial port is open for another channel.
	Station string `yaml:"station"`
	// Transport is "serial" (the corresponding modem-status bit on
	// Serial.Device) or "gpio" (an independently wired GPIO input line
	// described by GPIO below).
	Transport string         `yaml:"transport"`
	GPIO      GPIOLineConfig `yaml:"gpio"`
	// Power, if Enabled, drives a GPIO output pin to power-feed this
	// receiver (pkg/gpiopower), the GPIO equivalent of asserting DTR/RTS
	// on the serial port.
	Power PowerConfig `yaml:"power"`
	// NoSignalSeconds and GrossSkewSeconds override the §7 defaults
	// (300s, 1000s) for this channel; 0 keeps the supervisor default.
	NoSignalSeconds  int `yaml:"nosignalseconds"`
	GrossSkewSeconds int `yaml:"grossskewseconds"`
}

// PowerConfig names a static GPIO output pin used to power-feed a
// directly-wired receiver, independent of its edge-event transport.
type PowerConfig struct {
	Enabled bool `yaml:"enabled"`
	Line    int  `yaml:"line"`
}

// ChannelsConfig names the three status lines the supervisor owns,
// matching spec.md §3's line_name values.
type ChannelsConfig struct {
	DCD ChannelConfig `yaml:"dcd"`
	CTS ChannelConfig `yaml:"cts"`
	DSR ChannelConfig `yaml:"dsr"`
}

// MQTTConfig defines the struct of the mqtt client configuration for the
// optional telemetry sink (pkg/mqttpublish). An empty Connection disables
// it; samples are still published to shared memory regardless.
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration.
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// LogConfig defines the struct of the debug configuration and configuration file.
type LogConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

// NewConfig create the structure of the application configuration.
func NewConfig() *Config {
	return &Config{
		Flag: FlagConfig{},
		Serial: SerialConfig{
			Device: "/dev/ttyS0",
		},
		Channels: ChannelsConfig{
			DCD: ChannelConfig{Station: "dcf77", Transport: "serial"},
			CTS: ChannelConfig{Station: "msf", Transport: "serial"},
			DSR: ChannelConfig{Station: "wwvb", Transport: "serial"},
		},
		Log: LogConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4050",
			Webservices: map[string]bool{
				"version":  true,
				"health":   true,
				"channels": true,
			},
		},
	}
}

// LoadConfig reads the config file and set the application configuration.
func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.LogLevel != "" {
		c.Log.FlagString = c.Flag.LogLevel
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Log, err)
	}

	if c.Flag.Poll {
		c.Serial.Poll = true
	}

	for name, ch := range map[string]ChannelConfig{"dcd": c.Channels.DCD, "cts": c.Channels.CTS, "dsr": c.Channels.DSR} {
		switch ch.Station {
		case "", "dcf77", "msf", "wwvb":
		default:
			return fmt.Errorf("unsupported station for channel %q: %q", name, ch.Station)
		}
		switch ch.Transport {
		case "", "serial", "gpio":
		default:
			return fmt.Errorf("unsupported transport for channel %q: %q", name, ch.Transport)
		}
	}

	return nil
}

// NoSignalThreshold translates the configured seconds into a duration, 0
// meaning: keep the supervisor default.
func (c ChannelConfig) NoSignalThreshold() time.Duration {
	return time.Duration(c.NoSignalSeconds) * time.Second
}

// GrossSkewThreshold translates the configured seconds into a duration, 0
// meaning: keep the supervisor default.
func (c ChannelConfig) GrossSkewThreshold() time.Duration {
	return time.Duration(c.GrossSkewSeconds) * time.Second
}

// readConfigFile read the configuration File and store the content to the config structure.
func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

// setDebugConfig translate the log parameter to values of the debug module and open the log file.
func (c *Config) setDebugConfig() (err error) {
	switch s := strings.ToLower(c.Log.FlagString); s {
	case "trace", "full":
		c.Log.Flag = debug.Full
	case "debug":
		c.Log.Flag = debug.Fatal | debug.Info | debug.Error | debug.Warning | debug.Debug
	case "warning", "standard":
		c.Log.Flag = debug.Fatal | debug.Info | debug.Error | debug.Warning
	case "error":
		c.Log.Flag = debug.Fatal | debug.Info | debug.Error
	case "info":
		c.Log.Flag = debug.Fatal | debug.Info
	case "fatal":
		c.Log.Flag = debug.Fatal
	}

	switch c.Log.FileString {
	case "stderr":
		c.Log.File = os.Stderr
	case "stdout":
		c.Log.File = os.Stdout
	default:
		if c.Log.File, err = os.OpenFile(c.Log.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
