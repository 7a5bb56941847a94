package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"i4.energy/across/lorae5/modem"
	"i4.energy/across/lorae5/service"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0").
	// When empty the port is found by its USB vendor and product id.
	SerialPort string `yaml:"serial_port"`
	// USBVendorID and USBProductID identify the module's USB-UART bridge
	USBVendorID  uint16 `yaml:"usb_vendor_id"`
	USBProductID uint16 `yaml:"usb_product_id"`
	// BufferSize is the capacity of the receive buffer in bytes
	BufferSize int `yaml:"buffer_size"`
	// QueueSize is the number of requests that may wait for the device
	QueueSize int `yaml:"queue_size"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	ATTimeout   time.Duration `yaml:"at_timeout"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
	SendTimeout time.Duration `yaml:"send_timeout"`

	// Credentials are used by the configure command when none are given on
	// the command line. Only the configuration file can set them.
	Credentials *modem.Credentials `yaml:"credentials"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = ""
		c.USBVendorID = modem.SiliconLabsVID
		c.USBProductID = modem.CP210xPID
		c.BufferSize = modem.DefaultBufferSize
		c.QueueSize = service.DefaultQueueSize
		c.LogLevel = "info"
		c.ATTimeout = modem.DefaultATTimeout
		c.JoinTimeout = modem.DefaultJoinTimeout
		c.SendTimeout = modem.DefaultSendTimeout
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the file
// keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for _, v := range c.vars() {
			if s := os.Getenv(v.env); s != "" {
				if err := v.set(s); err != nil {
					return fmt.Errorf("invalid %s %q: %w", v.env, s, err)
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags. Only flags that were
// set explicitly override the current values.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		vars := c.vars()
		var err error
		fSet.Visit(func(f *flag.Flag) {
			for _, v := range vars {
				if v.flag != f.Name || err != nil {
					continue
				}
				if setErr := v.set(f.Value.String()); setErr != nil {
					err = fmt.Errorf("invalid -%s %q: %w", f.Name, f.Value.String(), setErr)
				}
			}
		})
		return err
	}
}

// configVar binds a Config field to its environment variable and flag.
type configVar struct {
	env  string
	flag string
	set  func(string) error
}

func (c *Config) vars() []configVar {
	return []configVar{
		{"BIND_ADDRESS", "bind-address", setString(&c.BindAddress)},
		{"SERIAL_PORT", "serial-port", setString(&c.SerialPort)},
		{"USB_VID", "usb-vid", setHexID(&c.USBVendorID)},
		{"USB_PID", "usb-pid", setHexID(&c.USBProductID)},
		{"BUFFER_SIZE", "buffer-size", setInt(&c.BufferSize)},
		{"QUEUE_SIZE", "queue-size", setInt(&c.QueueSize)},
		{"LOG_LEVEL", "log-level", setString(&c.LogLevel)},
		{"AT_TIMEOUT", "at-timeout", setDuration(&c.ATTimeout)},
		{"JOIN_TIMEOUT", "join-timeout", setDuration(&c.JoinTimeout)},
		{"SEND_TIMEOUT", "send-timeout", setDuration(&c.SendTimeout)},
	}
}

func setString(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// setHexID parses a USB id such as "10C4" or "0x10c4".
func setHexID(dst *uint16) func(string) error {
	return func(s string) error {
		s = strings.TrimPrefix(strings.ToLower(s), "0x")
		n, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return err
		}
		*dst = uint16(n)
		return nil
	}
}

// Dialer returns the dialer for the configured module: the serial port when
// one is set, otherwise the first port with the configured USB ids. The line
// settings are always the module's fixed 9600 8N1.
func (c *Config) Dialer() modem.Dialer {
	if c.SerialPort != "" {
		return modem.SerialDialer{PortName: c.SerialPort}
	}
	return modem.USBDialer{VendorID: c.USBVendorID, ProductID: c.USBProductID}
}
