package modem

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"i4.energy/across/lorae5/at"
)

// IsOK sends a bare AT and reports whether the module answered "+AT: OK".
// Transport and timeout failures are returned as errors; any other answer
// yields false.
func (d *Device) IsOK() (bool, error) {
	resp, err := d.exchange(at.CmdAt, []string{at.LF}, d.config.LivenessTimeout)
	if err != nil {
		return false, err
	}
	return checkFramedResponse(resp, at.PreludeAt, at.OK) == nil, nil
}

// Version returns the firmware version reported by AT+VER.
func (d *Device) Version() (string, error) {
	resp, err := d.exchangeLine(at.CmdVersion)
	if err != nil {
		return "", err
	}
	version, err := framedResponse(resp, at.PreludeVersion)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(version), nil
}

// Command sends a raw AT command and returns the first line of the answer
// verbatim. Multi-line answers such as join are cut after their first line.
func (d *Device) Command(cmd string, timeout time.Duration) (string, error) {
	cmd = strings.TrimRight(cmd, "\r\n")
	if err := d.writeCommand(cmd); err != nil {
		return "", err
	}
	n, err := d.readUntilBreak(timeout)
	if err != nil {
		return "", err
	}
	return d.text(n)
}

// SetChannel enables or disables a single channel of the channel plan.
func (d *Device) SetChannel(ch uint8, enable bool) error {
	state := "off"
	if enable {
		state = "on"
	}
	resp, err := d.exchangeLine(fmt.Sprintf("AT+CH=%d,%s", ch, state))
	if err != nil {
		return err
	}
	if err := checkFramedResponse(resp, at.PreludeChannel, fmt.Sprintf("%d %s", ch, state)); err != nil {
		return fmt.Errorf("set channel %d %s: %w", ch, state, err)
	}
	return nil
}

// RestrictSubband2 disables every US915 channel outside of sub-band 2
// (channels 8 to 15), as required by most US915 gateways.
func (d *Device) RestrictSubband2() error {
	for ch := uint8(0); ch < 8; ch++ {
		if err := d.SetChannel(ch, false); err != nil {
			return err
		}
	}
	for ch := uint8(16); ch < 72; ch++ {
		if err := d.SetChannel(ch, false); err != nil {
			return err
		}
	}
	return nil
}

// SetRegion selects the regional channel plan.
func (d *Device) SetRegion(region Region) error {
	resp, err := d.exchangeLine("AT+DR=" + region.String())
	if err != nil {
		return err
	}
	if err := checkFramedResponse(resp, at.PreludeDR, region.String()); err != nil {
		return fmt.Errorf("set region %s: %w", region, err)
	}
	return nil
}

// SetMode selects the operating mode.
func (d *Device) SetMode(mode Mode) error {
	resp, err := d.exchangeLine("AT+MODE=" + mode.String())
	if err != nil {
		return err
	}
	if err := checkFramedResponse(resp, at.PreludeMode, mode.String()); err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	return nil
}

// SetPort selects the LoRaWAN port used by subsequent uplinks.
func (d *Device) SetPort(port uint8) error {
	want := fmt.Sprintf("%d", port)
	resp, err := d.exchangeLine("AT+PORT=" + want)
	if err != nil {
		return err
	}
	if err := checkFramedResponse(resp, at.PreludePort, want); err != nil {
		return fmt.Errorf("set port %d: %w", port, err)
	}
	return nil
}

// SetDataRate selects the uplink data rate. The module confirms with a line
// such as "+DR: US915 DR3 SF7 BW125K" which must carry the requested rate.
func (d *Device) SetDataRate(dr DataRate) error {
	resp, err := d.exchangeLine("AT+DR=" + dr.String())
	if err != nil {
		return err
	}
	payload, err := framedResponse(resp, at.PreludeDR)
	if err != nil {
		return fmt.Errorf("set data rate %s: %w", dr, err)
	}
	if !slices.Contains(strings.Fields(payload), dr.Echo()) {
		return fmt.Errorf("set data rate %s: %w", dr, responseError(ErrUnexpectedResponse, payload))
	}
	return nil
}

// DevEUI reads the device identifier.
func (d *Device) DevEUI() (DevEUI, error) {
	payload, err := d.queryID(at.CmdDevEui, at.PreludeDevEui)
	if err != nil {
		return DevEUI{}, err
	}
	return ParseDevEUI(payload)
}

// AppEUI reads the application identifier.
func (d *Device) AppEUI() (AppEUI, error) {
	payload, err := d.queryID(at.CmdAppEui, at.PreludeAppEui)
	if err != nil {
		return AppEUI{}, err
	}
	return ParseAppEUI(payload)
}

// SetDevEUI writes the device identifier and verifies the echoed value.
func (d *Device) SetDevEUI(id DevEUI) error {
	payload, err := d.queryID(fmt.Sprintf("%s, %s", at.CmdDevEui, id), at.PreludeDevEui)
	if err != nil {
		return err
	}
	echoed, err := ParseDevEUI(payload)
	if err != nil {
		return err
	}
	if echoed != id {
		return responseError(ErrUnexpectedResponse, echoed.String())
	}
	return nil
}

// SetAppEUI writes the application identifier and verifies the echoed value.
func (d *Device) SetAppEUI(id AppEUI) error {
	payload, err := d.queryID(fmt.Sprintf("%s, %s", at.CmdAppEui, id), at.PreludeAppEui)
	if err != nil {
		return err
	}
	echoed, err := ParseAppEUI(payload)
	if err != nil {
		return err
	}
	if echoed != id {
		return responseError(ErrUnexpectedResponse, echoed.String())
	}
	return nil
}

// SetAppKey writes the application key and verifies the echoed value.
func (d *Device) SetAppKey(key AppKey) error {
	payload, err := d.queryID("AT+KEY=APPKEY, "+key.String(), at.PreludeAppKey)
	if err != nil {
		return err
	}
	echoed, err := ParseAppKey(payload)
	if err != nil {
		return err
	}
	if echoed != key {
		return responseError(ErrUnexpectedResponse, payload)
	}
	return nil
}

// SetCredentials writes DevEUI, AppEUI and AppKey in that order, stopping at
// the first failure.
func (d *Device) SetCredentials(c Credentials) error {
	if err := d.SetDevEUI(c.DevEUI); err != nil {
		return fmt.Errorf("set DevEui: %w", err)
	}
	if err := d.SetAppEUI(c.AppEUI); err != nil {
		return fmt.Errorf("set AppEui: %w", err)
	}
	if err := d.SetAppKey(c.AppKey); err != nil {
		return fmt.Errorf("set AppKey: %w", err)
	}
	return nil
}

func (d *Device) queryID(cmd, prelude string) (string, error) {
	resp, err := d.exchangeLine(cmd)
	if err != nil {
		return "", err
	}
	payload, err := framedResponse(resp, prelude)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(payload, "\r\n"), nil
}

// Join starts an OTAA join unless the module already holds a session.
func (d *Device) Join() (JoinResponse, error) {
	return d.join(at.CmdJoin, false, at.JoinDone, at.JoinedAlready)
}

// ForceJoin starts an OTAA join, discarding any existing session.
func (d *Device) ForceJoin() (JoinResponse, error) {
	return d.join(at.CmdForceJoin, true, at.JoinDone)
}

func (d *Device) join(cmd string, force bool, terminators ...string) (JoinResponse, error) {
	resp, err := d.exchange(cmd, terminators, d.config.JoinTimeout)
	if err != nil {
		return JoinFailed, err
	}
	return classifyJoin(resp, force), nil
}

// Send transmits data as an uplink on port. A confirmed uplink fails with
// ErrNack when the network did not answer in either receive window. The
// returned Downlink is nil when no window was reported.
func (d *Device) Send(data []byte, port uint8, confirmed bool) (*Downlink, error) {
	name := at.MsgHex
	if confirmed {
		name = at.CMsgHex
	}
	return d.uplink(name, hex.EncodeToString(data), port, confirmed)
}

// SendText transmits the UTF-8 bytes of text as an uplink on port. It
// behaves like Send.
func (d *Device) SendText(text string, port uint8, confirmed bool) (*Downlink, error) {
	name := at.Msg
	if confirmed {
		name = at.CMsg
	}
	return d.uplink(name, hex.EncodeToString([]byte(text)), port, confirmed)
}

func (d *Device) uplink(name, payload string, port uint8, confirmed bool) (*Downlink, error) {
	if err := d.SetPort(port); err != nil {
		return nil, err
	}
	resp, err := d.exchange(fmt.Sprintf("AT+%s=\"%s\"", name, payload), []string{at.Done(name)}, d.config.SendTimeout)
	if err != nil {
		return nil, err
	}
	return downlinkFrom(resp, confirmed)
}
