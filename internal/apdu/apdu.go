// Package apdu models ISO 7816-4 command/response APDUs and the status-word
// taxonomy the card processor reports through.
package apdu

import "fmt"

// Status words used by the processor. Mirrors the taxonomy in spec.md §6.
const (
	SWSuccess               uint16 = 0x9000 // OK
	SWWrongLength           uint16 = 0x6700 // wrong Lc/Le
	SWIncorrectFileType     uint16 = 0x6981
	SWInvalidData           uint16 = 0x6984
	SWConditionsNotSat      uint16 = 0x6985
	SWIncorrectParamsInData uint16 = 0x6A80
	SWFuncNotSupported      uint16 = 0x6A81
	SWFileNotFound          uint16 = 0x6A82
	SWIncorrectP1P2         uint16 = 0x6A86
	SWLcLeInconsistent      uint16 = 0x6A87
	SWReferencedDataNotFound uint16 = 0x6A88
)

// DataReadySW builds the 0x61xx "data ready" status word; xx=0 means 256 bytes.
func DataReadySW(length int) uint16 {
	if length >= 256 {
		length = 0
	}
	return 0x6100 | uint16(length)
}

// Command instruction bytes handled by the processor (spec.md §6).
const (
	InsVerify              byte = 0x20
	InsManageSecurityEnv   byte = 0x22
	InsPerformSecurityOp   byte = 0x2A
	InsGenerateKey         byte = 0x46
	InsGeneralAuthenticate byte = 0x86
	InsGetData             byte = 0xCA
	InsPutData             byte = 0xDA
	InsActivateApplet      byte = 0x44
)

// Command is a parsed command APDU: header plus body.
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	Le   int // requested response length; -1 if absent
}

// ParseCommand decodes a raw command APDU using the short (ISO 7816-3 T=0/T=1
// case 1-4 short-form) encoding only; extended length is out of scope for
// this card class.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < 4 {
		return nil, &StatusError{SW: SWWrongLength}
	}
	cmd := &Command{CLA: raw[0], INS: raw[1], P1: raw[2], P2: raw[3], Le: -1}
	rest := raw[4:]
	switch {
	case len(rest) == 0: // case 1: no data, no Le
		return cmd, nil
	case len(rest) == 1: // case 2: Le only
		cmd.Le = leValue(rest[0])
		return cmd, nil
	default:
		lc := int(rest[0])
		if lc == 0 || len(rest) < 1+lc {
			return nil, &StatusError{SW: SWLcLeInconsistent}
		}
		cmd.Data = rest[1 : 1+lc]
		tail := rest[1+lc:]
		switch len(tail) {
		case 0: // case 3: Lc+data, no Le
		case 1: // case 4: Lc+data+Le
			cmd.Le = leValue(tail[0])
		default:
			return nil, &StatusError{SW: SWLcLeInconsistent}
		}
		return cmd, nil
	}
}

func leValue(b byte) int {
	if b == 0x00 {
		return 256
	}
	return int(b)
}

// Response is the (status_word, length, data) tuple a handler returns.
type Response struct {
	SW   uint16
	Data []byte
}

// Bytes renders the response as wire bytes: data followed by the 2-byte SW.
func (r Response) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	out = append(out, byte(r.SW>>8), byte(r.SW))
	return out
}

// StatusError is a card-processor error reported as an ISO 7816 status word.
type StatusError struct {
	SW   uint16
	Note string
}

func (e *StatusError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("SW=%04X: %s", e.SW, e.Note)
	}
	return fmt.Sprintf("SW=%04X", e.SW)
}

// AsResponse converts any error into a Response, defaulting unrecognized
// errors to 0x6985 (conditions not satisfied) since every failure path in
// this processor follows sensitive-data handling.
func AsResponse(err error) Response {
	if se, ok := err.(*StatusError); ok {
		return Response{SW: se.SW}
	}
	return Response{SW: SWConditionsNotSat}
}
