package session

import (
	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/tlv"
)

const (
	crdoAlgorithm     byte = 0x80
	crdoKeyFileID     byte = 0x81
	crdoKeyRefA       byte = 0x83
	crdoKeyRefB       byte = 0x84
	crdoIVIndicator   byte = 0x87
)

const (
	p1Restore    byte = 0xF3
	p1Alias      byte = 0xA4 // tolerated alias for P1=0x41 P2=0xA4 (spec.md §4.1)
	p1Set1       byte = 0x41
	p1Set2       byte = 0x81

	p2Sign byte = 0xB6
	p2Enc  byte = 0xB8
	p2ECDH byte = 0xA4
)

// ManageSecurityEnvironment implements INS=0x22 (spec.md §4.1). It always
// begins by invalidating env; only full success leaves it armed.
func ManageSecurityEnvironment(env *Environment, p1, p2 byte, body []byte) apdu.Response {
	env.Invalidate()

	if p1 == p1Restore {
		if len(body) != 0 {
			return apdu.Response{SW: apdu.SWWrongLength}
		}
		// Known stub (spec.md §9): RESTORE never re-arms the environment.
		return apdu.Response{SW: apdu.SWSuccess}
	}

	if p1 == p1Alias {
		p1, p2 = p1Set1, p1Alias
	}

	if p1 != p1Set1 && p1 != p1Set2 {
		return apdu.Response{SW: apdu.SWIncorrectP1P2}
	}

	var (
		haveAlgo, haveKeyFile bool
		algo                  byte
		keyFileID             uint16
		ivPresent             bool
	)

	err := tlv.Walk(body, func(e tlv.Entry) error {
		switch e.Tag {
		case crdoAlgorithm:
			if len(e.Value) != 1 {
				return &apdu.StatusError{SW: apdu.SWIncorrectParamsInData}
			}
			a := e.Value[0]
			if a != constants.AlgoRSARaw && a != constants.AlgoRSADigestInfo &&
				a != constants.AlgoRSASHA1 && a != constants.AlgoECDSA {
				return &apdu.StatusError{SW: apdu.SWFuncNotSupported}
			}
			algo, haveAlgo = a, true

		case crdoKeyFileID:
			if len(e.Value) != 2 {
				return &apdu.StatusError{SW: apdu.SWIncorrectParamsInData}
			}
			keyFileID = uint16(e.Value[0])<<8 | uint16(e.Value[1])
			haveKeyFile = true

		case crdoKeyRefA, crdoKeyRefB:
			// spec.md §9 quirk: some clients set this to 0x01; MyEID
			// compatibility requires tolerating values other than 0x00.
			if len(e.Value) != 1 {
				return &apdu.StatusError{SW: apdu.SWIncorrectParamsInData}
			}

		case crdoIVIndicator:
			ivPresent = true

		default:
			return &apdu.StatusError{SW: apdu.SWIncorrectParamsInData}
		}
		return nil
	})
	if err != nil {
		if se, ok := err.(*apdu.StatusError); ok {
			return apdu.Response{SW: se.SW}
		}
		return apdu.Response{SW: apdu.SWIncorrectParamsInData}
	}

	if !haveAlgo || !haveKeyFile {
		return apdu.Response{SW: apdu.SWFuncNotSupported}
	}

	var op Operation
	switch p2 {
	case p2Sign:
		op = OpSign
	case p2Enc:
		if p1 == p1Set2 {
			op = OpEncrypt
		} else {
			op = OpDecrypt
		}
	case p2ECDH:
		op = OpECDH
	default:
		return apdu.Response{SW: apdu.SWIncorrectP1P2}
	}

	env.arm(op, algo, keyFileID, ivPresent)
	return apdu.Response{SW: apdu.SWSuccess}
}
