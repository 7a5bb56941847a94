package modem

import (
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/lorae5/at"
)

// framedResponse strips prelude from a "<prelude><payload>\r\n" response.
// The payload keeps its line terminator.
func framedResponse(response, prelude string) (string, error) {
	payload, ok := strings.CutPrefix(response, prelude)
	if !ok {
		return "", responseError(ErrUnexpectedResponse, response)
	}
	return payload, nil
}

// checkFramedResponse verifies that the payload of a framed response equals
// want once the line terminator is removed.
func checkFramedResponse(response, prelude, want string) error {
	payload, err := framedResponse(response, prelude)
	if err != nil {
		return err
	}
	if strings.TrimRight(payload, "\r\n") != want {
		return responseError(ErrUnexpectedResponse, payload)
	}
	return nil
}

// classifyJoin decides the outcome of a join from the full response. The
// checks run in order and the first match wins:
//
//  1. "Joined already" means a session existed and was kept (skipped for a
//     forced join, which always discards the session)
//  2. "Network joined" means a new session was established
//  3. anything else is a failed attempt
func classifyJoin(response string, force bool) JoinResponse {
	switch {
	case !force && strings.Contains(response, at.MarkerJoinedAlready):
		return AlreadyJoined
	case strings.Contains(response, at.MarkerNetworkJoined):
		return JoinComplete
	default:
		return JoinFailed
	}
}

// downlinkFrom extracts the receive window report of an uplink response.
// A confirmed uplink without any window report was not acknowledged.
func downlinkFrom(response string, confirmed bool) (*Downlink, error) {
	for _, marker := range []string{at.MarkerRxWin1, at.MarkerRxWin2} {
		if i := strings.Index(response, marker); i >= 0 {
			rssi, snr, err := parseRSSISNR(response, i)
			if err != nil {
				return nil, err
			}
			return &Downlink{RSSI: rssi, SNR: snr}, nil
		}
	}
	if confirmed {
		return nil, ErrNack
	}
	return nil, nil
}

// parseRSSISNR parses a "RXWIN1, RSSI -79, SNR 7.0\r\n" line starting at
// offset m of response.
func parseRSSISNR(response string, m int) (int, float64, error) {
	const (
		markerLen = len(at.MarkerRxWin1)
		rssiField = ", RSSI "
		snrField  = "SNR "
	)

	if m < 0 || m+markerLen > len(response) {
		return 0, 0, fmt.Errorf("%w: no window marker at offset %d in %q", ErrSignalFormat, m, response)
	}
	remaining := response[m:]
	end := strings.Index(remaining, at.CRLF)
	if end < 0 {
		return 0, 0, fmt.Errorf("%w: unterminated line %q", ErrSignalFormat, remaining)
	}
	line := remaining[:end]

	signal, ok := strings.CutPrefix(line[markerLen:], rssiField)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrSignalFormat, line)
	}
	rssiText, snrText, ok := strings.Cut(signal, ", ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrSignalFormat, line)
	}
	snrText, ok = strings.CutPrefix(snrText, snrField)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrSignalFormat, line)
	}

	rssi, err := strconv.Atoi(rssiText)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: rssi from %q: %w", ErrSignalFormat, line, err)
	}
	snr, err := strconv.ParseFloat(snrText, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: snr from %q: %w", ErrSignalFormat, line, err)
	}
	return rssi, snr, nil
}
