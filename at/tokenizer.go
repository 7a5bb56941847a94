package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing LoRa-E5 responses. It uses the signature of
// bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines are terminated by CRLF. A bare LF is accepted as well since the module
// echoes the LF that terminates each command in some firmware versions.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte("\r")), nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Lines splits a complete response into its non-empty lines.
func Lines(response string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(response))
	scanner.Split(Splitter)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Classify identifies the nature of a single response line
func Classify(line string) ResponseType {
	_, payload, found := strings.Cut(line, ": ")
	if !strings.HasPrefix(line, "+") || !found {
		return TypeData
	}

	switch {
	case payload == "Done":
		return TypeDone
	case strings.HasPrefix(payload, "ERROR"):
		return TypeError
	case strings.HasPrefix(payload, MarkerRxWin1), strings.HasPrefix(payload, MarkerRxWin2):
		return TypeWindow
	default:
		return TypeData
	}
}
