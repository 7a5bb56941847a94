package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"i4.energy/across/lorae5/modem"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.USBVendorID != 0x10C4 || config.USBProductID != 0xEA60 {
		t.Errorf("unexpected USB ids %04X:%04X", config.USBVendorID, config.USBProductID)
	}
	if config.QueueSize != 32 {
		t.Errorf("unexpected queue size %d", config.QueueSize)
	}
	if config.JoinTimeout != 20*time.Second {
		t.Errorf("unexpected join timeout %v", config.JoinTimeout)
	}
	if _, ok := config.Dialer().(modem.USBDialer); !ok {
		t.Errorf("expected USB dialer without a serial port, got %T", config.Dialer())
	}
}

func TestWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lorae5.yaml")
	doc := `
serial_port: /dev/ttyACM0
queue_size: 4
log_level: debug
join_timeout: 45s
credentials:
  dev_eui: 2CF7F1203230A5C8
  app_eui: "80:00:00:00:00:00:00:06"
  app_key: 2B7E151628AED2A6ABF7158809CF4F3C
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(WithDefaults(), WithFile(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.SerialPort != "/dev/ttyACM0" || config.QueueSize != 4 || config.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", config)
	}
	if config.JoinTimeout != 45*time.Second {
		t.Errorf("unexpected join timeout %v", config.JoinTimeout)
	}
	if config.BufferSize != modem.DefaultBufferSize {
		t.Errorf("default buffer size lost: %d", config.BufferSize)
	}
	if config.Credentials == nil || config.Credentials.AppEUI.String() != "8000000000000006" {
		t.Errorf("unexpected credentials %+v", config.Credentials)
	}
	dialer, ok := config.Dialer().(modem.SerialDialer)
	if !ok || dialer.PortName != "/dev/ttyACM0" || dialer.Mode != nil {
		t.Errorf("unexpected dialer %+v", config.Dialer())
	}
}

func TestWithFileErrors(t *testing.T) {
	if _, err := LoadConfig(WithFile(filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("credentials:\n  dev_eui: 01\n"), 0o600)
	if _, err := LoadConfig(WithFile(path)); err == nil || !strings.Contains(err.Error(), "DevEui") {
		t.Errorf("expected DevEui parse error, got: %v", err)
	}

	if _, err := LoadConfig(WithFile("")); err != nil {
		t.Errorf("empty path should be ignored, got: %v", err)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyUSB3")
	t.Setenv("USB_VID", "0x1a86")
	t.Setenv("SEND_TIMEOUT", "7s")

	config, err := LoadConfig(WithDefaults(), WithEnv())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.SerialPort != "/dev/ttyUSB3" {
		t.Errorf("unexpected serial port %q", config.SerialPort)
	}
	if config.USBVendorID != 0x1A86 {
		t.Errorf("unexpected vendor id %04X", config.USBVendorID)
	}
	if config.SendTimeout != 7*time.Second {
		t.Errorf("unexpected send timeout %v", config.SendTimeout)
	}

	t.Setenv("QUEUE_SIZE", "many")
	if _, err := LoadConfig(WithDefaults(), WithEnv()); err == nil || !strings.Contains(err.Error(), "QUEUE_SIZE") {
		t.Errorf("expected QUEUE_SIZE error, got: %v", err)
	}
}

func TestWithFlags(t *testing.T) {
	newFlagSet := func() *flag.FlagSet {
		fSet := flag.NewFlagSet("test", flag.ContinueOnError)
		fSet.String("serial-port", "", "")
		fSet.String("usb-pid", "EA60", "")
		fSet.Int("buffer-size", 256, "")
		fSet.String("log-level", "info", "")
		return fSet
	}

	t.Run("Only explicit flags override", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		fSet := newFlagSet()
		if err := fSet.Parse([]string{"-buffer-size", "512", "-usb-pid", "ea61"}); err != nil {
			t.Fatal(err)
		}

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fSet))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.BufferSize != 512 {
			t.Errorf("unexpected buffer size %d", config.BufferSize)
		}
		if config.USBProductID != 0xEA61 {
			t.Errorf("unexpected product id %04X", config.USBProductID)
		}
		if config.LogLevel != "warn" {
			t.Errorf("unset flag overrode environment: %q", config.LogLevel)
		}
	})

	t.Run("Invalid value", func(t *testing.T) {
		fSet := newFlagSet()
		fSet.Parse([]string{"-usb-pid", "xyz"})

		if _, err := LoadConfig(WithDefaults(), WithFlags(fSet)); err == nil || !strings.Contains(err.Error(), "usb-pid") {
			t.Errorf("expected usb-pid error, got: %v", err)
		}
	})
}

func TestLineSettingsAreFixed(t *testing.T) {
	t.Setenv("BAUD_RATE", "115200")

	path := filepath.Join(t.TempDir(), "lorae5.yaml")
	if err := os.WriteFile(path, []byte("serial_port: /dev/ttyACM0\nbaud_rate: 115200\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(WithDefaults(), WithFile(path), WithEnv())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dialer, ok := config.Dialer().(modem.SerialDialer)
	if !ok {
		t.Fatalf("expected serial dialer, got %T", config.Dialer())
	}
	if dialer.Mode != nil {
		t.Errorf("expected the dialer's 9600 8N1 default, got %+v", dialer.Mode)
	}
	if _, ok := (&Config{}).Dialer().(modem.USBDialer); !ok {
		t.Error("expected USB dialer without a serial port")
	}
}
