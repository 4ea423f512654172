package cryptofmt

import (
	"math/big"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/ecparam"
	"github.com/Jakuje/oseid/internal/kernel"
	"github.com/Jakuje/oseid/internal/tlv"
)

// dynamicAuthTemplateTag is the outer tag (0x7C) GENERAL AUTHENTICATE bodies
// carry (spec.md §4.6).
const dynamicAuthTemplateTag = 0x7C

// keyIdentifierTag is the optional tag (0x80) inside the template.
const keyIdentifierTag = 0x80

// peerPointTag (0x85) carries the uncompressed peer public point.
const peerPointTag = 0x85

// ECDHRespond implements the GENERAL AUTHENTICATE responder (spec.md §4.6):
// parses body as "7C LL 85 LL 04||X||Y" (with an optional leading 80 LL key
// identifier), computes d*P, and returns the big-endian X-coordinate.
func ECDHRespond(curve *ecparam.Curve, priv *big.Int, body []byte) ([]byte, error) {
	outer, ok := tlv.Find(body, dynamicAuthTemplateTag)
	if !ok {
		return nil, &apdu.StatusError{SW: apdu.SWInvalidData, Note: "missing dynamic authentication template"}
	}

	var peerPoint []byte
	err := tlv.Walk(outer, func(e tlv.Entry) error {
		switch e.Tag {
		case keyIdentifierTag:
			return nil // optional, ignored
		case peerPointTag:
			peerPoint = e.Value
			return nil
		default:
			return &apdu.StatusError{SW: apdu.SWInvalidData, Note: "unexpected tag in auth template"}
		}
	})
	if err != nil {
		return nil, err
	}
	if peerPoint == nil {
		return nil, &apdu.StatusError{SW: apdu.SWInvalidData, Note: "missing peer point"}
	}

	scalarSize := curve.ScalarSize()
	if len(peerPoint) != 1+2*scalarSize || peerPoint[0] != 0x04 {
		return nil, &apdu.StatusError{SW: apdu.SWInvalidData, Note: "peer point must be uncompressed"}
	}
	peerX := new(big.Int).SetBytes(peerPoint[1 : 1+scalarSize])
	peerY := new(big.Int).SetBytes(peerPoint[1+scalarSize:])

	x, err := kernel.ECDH(curve, priv, peerX, peerY)
	if err != nil {
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "ecdh kernel failure"}
	}

	out := make([]byte, scalarSize)
	x.FillBytes(out)
	return out, nil
}
