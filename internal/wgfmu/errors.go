package wgfmu

import (
	"errors"
	"fmt"
)

// ErrUnidentified is returned for status codes outside the known table and
// when no captured data is available.
var ErrUnidentified = errors.New("wgfmu: unidentified error")

// Status is a non-zero instrument status code. It implements error so that
// callers can match specific conditions with errors.Is.
type Status int

// Status codes reported by the instrument library.
const (
	StatusParameterOutOfRange  Status = -1
	StatusIllegalString        Status = -2
	StatusContext              Status = -3
	StatusFunctionNotSupported Status = -4
	StatusCommunication        Status = -5
	StatusFirmware             Status = -6
	StatusLibrary              Status = -7
	StatusGeneric              Status = -8
	StatusChannelNotFound      Status = -9
	StatusPatternNotFound      Status = -10
	StatusEventNotFound        Status = -11
	StatusPatternAlreadyExists Status = -12
	StatusSequencerNotRunning  Status = -13
	StatusResultNotReady       Status = -14
	StatusResultOutOfDate      Status = -15
)

// codeOK is the status code for a successful call.
const codeOK = 0

var statusText = map[Status]string{
	StatusParameterOutOfRange:  "parameter out of range",
	StatusIllegalString:        "illegal string",
	StatusContext:              "context error",
	StatusFunctionNotSupported: "function not supported",
	StatusCommunication:        "communication error",
	StatusFirmware:             "firmware error",
	StatusLibrary:              "library error",
	StatusGeneric:              "instrument error",
	StatusChannelNotFound:      "channel not found",
	StatusPatternNotFound:      "pattern not found",
	StatusEventNotFound:        "event not found",
	StatusPatternAlreadyExists: "pattern already exists",
	StatusSequencerNotRunning:  "sequencer not running",
	StatusResultNotReady:       "result not ready",
	StatusResultOutOfDate:      "result out of date",
}

func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return fmt.Sprintf("wgfmu: %s (%d)", text, int(s))
	}
	return fmt.Sprintf("wgfmu: status %d", int(s))
}

// CheckStatus maps an instrument status code to an error. Zero is success,
// a code in the status table yields that Status, anything else yields
// ErrUnidentified.
func CheckStatus(code int) error {
	if code == codeOK {
		return nil
	}
	if _, ok := statusText[Status(code)]; ok {
		return Status(code)
	}
	return ErrUnidentified
}
