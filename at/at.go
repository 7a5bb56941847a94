// Package at holds the AT command vocabulary spoken by LoRa-E5 modules and
// helpers for splitting and classifying the lines they reply with.
package at

const (
	// Terminal Control
	CRLF = "\r\n"
	LF   = "\n"

	// Commands
	CmdAt        = "AT"
	CmdVersion   = "AT+VER"
	CmdDevEui    = "AT+ID=DevEui"
	CmdAppEui    = "AT+ID=AppEui"
	CmdJoin      = "AT+JOIN"
	CmdForceJoin = "AT+JOIN=FORCE"

	// Response preludes
	PreludeAt      = "+AT: "
	PreludeVersion = "+VER: "
	PreludeChannel = "+CH: CH"
	PreludeDR      = "+DR: "
	PreludeMode    = "+MODE: "
	PreludePort    = "+PORT: "
	PreludeDevEui  = "+ID: DevEui, "
	PreludeAppEui  = "+ID: AppEui, "
	PreludeAppKey  = "+KEY: APPKEY "

	// Final lines
	JoinDone      = "+JOIN: Done\r\n"
	JoinedAlready = "+JOIN: Joined already\r\n"

	// Markers scanned for in multi-line responses
	MarkerJoinedAlready = "Joined already"
	MarkerNetworkJoined = "Network joined"
	MarkerRxWin1        = "RXWIN1"
	MarkerRxWin2        = "RXWIN2"

	OK = "OK"
)

// Uplink command names. The confirmed variants ask the network for an ACK.
const (
	MsgHex  = "MSGHEX"
	CMsgHex = "CMSGHEX"
	Msg     = "MSG"
	CMsg    = "CMSG"
)

// Done returns the final line the module prints when an uplink command of the
// given name has finished, e.g. "+CMSGHEX: Done\r\n".
func Done(name string) string {
	return "+" + name + ": Done" + CRLF
}

type ResponseType int

const (
	TypeData   ResponseType = iota // +TAG: payload
	TypeDone                       // +TAG: Done
	TypeError                      // +TAG: ERROR(<code>)
	TypeWindow                     // +TAG: RXWIN1, RSSI ..., SNR ...
)

func (t ResponseType) String() string {
	switch t {
	case TypeDone:
		return "done"
	case TypeError:
		return "error"
	case TypeWindow:
		return "window"
	default:
		return "data"
	}
}
