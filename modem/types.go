package modem

import (
	"fmt"
	"strings"
)

// Mode selects the operating mode of the module.
type Mode int

const (
	ModeTest Mode = iota
	ModeOTAA
	ModeABP
)

// String returns the wire encoding used by AT+MODE.
func (m Mode) String() string {
	switch m {
	case ModeTest:
		return "TEST"
	case ModeOTAA:
		return "LWOTAA"
	case ModeABP:
		return "LWABP"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the wire encoding or the short names "test", "otaa" and
// "abp", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEST":
		return ModeTest, nil
	case "LWOTAA", "OTAA":
		return ModeOTAA, nil
	case "LWABP", "ABP":
		return ModeABP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Region is the regional channel plan.
type Region int

const (
	RegionEU868 Region = iota
	RegionUS915
)

// String returns the wire encoding used by AT+DR.
func (r Region) String() string {
	switch r {
	case RegionEU868:
		return "EU868"
	case RegionUS915:
		return "US915"
	default:
		return fmt.Sprintf("Region(%d)", int(r))
	}
}

// ParseRegion accepts "EU868" and "US915", case-insensitively.
func ParseRegion(s string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EU868":
		return RegionEU868, nil
	case "US915":
		return RegionUS915, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRegion, s)
}

// DataRate is a LoRaWAN data rate index. Only DR0 through DR4 are supported.
type DataRate uint8

const (
	DR0 DataRate = iota
	DR1
	DR2
	DR3
	DR4
)

// ParseDataRate parses the decimal literals "0" through "4".
func ParseDataRate(s string) (DataRate, error) {
	if len(s) != 1 || s[0] < '0' || s[0] > '4' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDataRate, s)
	}
	return DataRate(s[0] - '0'), nil
}

// String returns the decimal index, as sent with AT+DR.
func (dr DataRate) String() string {
	return fmt.Sprintf("%d", uint8(dr))
}

// Echo returns the field the module prints back once the data rate has been
// accepted, e.g. "DR3".
func (dr DataRate) Echo() string {
	return "DR" + dr.String()
}

// Downlink holds the signal quality reported for a receive window.
type Downlink struct {
	RSSI int     `json:"rssi"`
	SNR  float64 `json:"snr"`
}

// JoinResponse is the outcome of a join attempt.
type JoinResponse int

const (
	JoinFailed JoinResponse = iota
	JoinComplete
	AlreadyJoined
)

func (j JoinResponse) String() string {
	switch j {
	case JoinComplete:
		return "JoinComplete"
	case AlreadyJoined:
		return "AlreadyJoined"
	default:
		return "JoinFailed"
	}
}
