package modem

import (
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/brocaar/lorawan"
)

// DevEUI is the 8 byte device identifier.
type DevEUI lorawan.EUI64

// AppEUI is the 8 byte application (join) identifier.
type AppEUI lorawan.EUI64

// AppKey is the 16 byte root key used for over-the-air activation.
type AppKey lorawan.AES128Key

// Credentials groups the identifiers required for an OTAA join.
type Credentials struct {
	DevEUI DevEUI `json:"dev_eui" yaml:"dev_eui"`
	AppEUI AppEUI `json:"app_eui" yaml:"app_eui"`
	AppKey AppKey `json:"app_key" yaml:"app_key"`
}

// unmarshalHex normalizes s and hands it to the lorawan text decoder of a
// fixed size identifier. Colons are ignored so that the "60:81:F9:A7:..."
// notation is accepted.
func unmarshalHex(u encoding.TextUnmarshaler, size int, s string) error {
	text := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(s), ":", ""), "0x")
	err := u.UnmarshalText([]byte(text))
	if err == nil {
		return nil
	}

	var byteErr hex.InvalidByteError
	if errors.As(err, &byteErr) || errors.Is(err, hex.ErrLength) {
		return fmt.Errorf("%w: %w", ErrInvalidHex, err)
	}
	return &LengthError{Got: len(text) / 2, Want: size}
}

// ParseDevEUI parses a hex encoded DevEUI.
func ParseDevEUI(s string) (DevEUI, error) {
	var id lorawan.EUI64
	if err := unmarshalHex(&id, len(id), s); err != nil {
		return DevEUI{}, fmt.Errorf("parse DevEui: %w", err)
	}
	return DevEUI(id), nil
}

// ParseAppEUI parses a hex encoded AppEUI.
func ParseAppEUI(s string) (AppEUI, error) {
	var id lorawan.EUI64
	if err := unmarshalHex(&id, len(id), s); err != nil {
		return AppEUI{}, fmt.Errorf("parse AppEui: %w", err)
	}
	return AppEUI(id), nil
}

// ParseAppKey parses a hex encoded AppKey.
func ParseAppKey(s string) (AppKey, error) {
	var key lorawan.AES128Key
	if err := unmarshalHex(&key, len(key), s); err != nil {
		return AppKey{}, fmt.Errorf("parse AppKey: %w", err)
	}
	return AppKey(key), nil
}

// String returns the canonical upper-case hex form.
func (id DevEUI) String() string { return strings.ToUpper(lorawan.EUI64(id).String()) }

// String returns the canonical upper-case hex form.
func (id AppEUI) String() string { return strings.ToUpper(lorawan.EUI64(id).String()) }

// String returns the canonical upper-case hex form.
func (k AppKey) String() string { return strings.ToUpper(lorawan.AES128Key(k).String()) }

func (id DevEUI) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AppEUI) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (k AppKey) MarshalText() ([]byte, error)  { return []byte(k.String()), nil }

func (id *DevEUI) UnmarshalText(text []byte) error {
	parsed, err := ParseDevEUI(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AppEUI) UnmarshalText(text []byte) error {
	parsed, err := ParseAppEUI(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (k *AppKey) UnmarshalText(text []byte) error {
	parsed, err := ParseAppKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
