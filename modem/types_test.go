package modem_test

import (
	"errors"
	"testing"

	"i4.energy/across/lorae5/modem"
)

func TestParseDataRate(t *testing.T) {
	for i, s := range []string{"0", "1", "2", "3", "4"} {
		dr, err := modem.ParseDataRate(s)
		if err != nil {
			t.Errorf("ParseDataRate(%q) unexpected error: %v", s, err)
			continue
		}
		if dr != modem.DataRate(i) || dr.String() != s {
			t.Errorf("ParseDataRate(%q) = %v", s, dr)
		}
	}

	for _, s := range []string{"5", "a", "10", "", "-1", " 3"} {
		if _, err := modem.ParseDataRate(s); !errors.Is(err, modem.ErrInvalidDataRate) {
			t.Errorf("ParseDataRate(%q) expected ErrInvalidDataRate, got: %v", s, err)
		}
	}

	if modem.DR3.Echo() != "DR3" {
		t.Errorf("unexpected echo %q", modem.DR3.Echo())
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]modem.Mode{
		"test":   modem.ModeTest,
		"OTAA":   modem.ModeOTAA,
		"lwotaa": modem.ModeOTAA,
		"LWABP":  modem.ModeABP,
	}
	for s, expected := range tests {
		got, err := modem.ParseMode(s)
		if err != nil || got != expected {
			t.Errorf("ParseMode(%q) = %v, %v; expected %v", s, got, err, expected)
		}
	}

	if _, err := modem.ParseMode("class-c"); !errors.Is(err, modem.ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got: %v", err)
	}
}

func TestParseRegion(t *testing.T) {
	if r, err := modem.ParseRegion("us915"); err != nil || r != modem.RegionUS915 {
		t.Errorf("ParseRegion(us915) = %v, %v", r, err)
	}
	if r, err := modem.ParseRegion("EU868"); err != nil || r != modem.RegionEU868 {
		t.Errorf("ParseRegion(EU868) = %v, %v", r, err)
	}
	if _, err := modem.ParseRegion("AS923"); !errors.Is(err, modem.ErrInvalidRegion) {
		t.Errorf("expected ErrInvalidRegion, got: %v", err)
	}
}
