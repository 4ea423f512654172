package session

import (
	"log/slog"
	"math/big"
	"sync"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/cryptofmt"
	"github.com/Jakuje/oseid/internal/ecparam"
	"github.com/Jakuje/oseid/internal/kernel"
	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/tlv"
)

// Processor is the top-level APDU router: one security environment, one
// response-staging buffer, and the file-system/key-store collaborators
// spec.md §6 treats as external (here satisfied by *keystore.Store). A real
// card serializes commands over a single channel; mu reproduces that for
// oseidsim serve, which may hold several concurrent transport connections
// against one Processor.
type Processor struct {
	FS  FileSystem
	KS  KeyStore
	Env Environment
	Rsp ResponseBuffer
	Log *slog.Logger

	mu sync.Mutex
}

// NewProcessor builds a Processor over the given store, used for both the
// FileSystem and KeyStore roles since *keystore.Store satisfies both.
func NewProcessor(store *keystore.Store, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{FS: store, KS: store, Log: log}
}

// Process decodes and dispatches one command APDU (spec.md §6). Commands
// are serialized: only one is ever in flight against this Processor's
// security environment and response buffer at a time.
func (p *Processor) Process(raw []byte) apdu.Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, err := apdu.ParseCommand(raw)
	if err != nil {
		return apdu.AsResponse(err)
	}

	resp := p.dispatch(cmd)
	p.Log.Debug("apdu processed",
		slog.String("ins", hexByte(cmd.INS)),
		slog.String("p1", hexByte(cmd.P1)),
		slog.String("p2", hexByte(cmd.P2)),
		slog.String("sw", hexWord(resp.SW)),
	)
	return resp
}

func (p *Processor) dispatch(cmd *apdu.Command) apdu.Response {
	if cmd.INS != apdu.InsPerformSecurityOp || cmd.P1 != psoP1Decipher || cmd.P2 != psoP2Decipher {
		p.Rsp.Clear()
	}
	switch cmd.INS {
	case apdu.InsManageSecurityEnv:
		return ManageSecurityEnvironment(&p.Env, cmd.P1, cmd.P2, cmd.Data)

	case apdu.InsPerformSecurityOp:
		return PerformSecurityOperation(&p.Env, &p.Rsp, p.FS, p.KS, cmd.CLA, cmd.P1, cmd.P2, cmd.Data)

	case apdu.InsGenerateKey:
		return p.generateKey(cmd.P1, cmd.P2, cmd.Data)

	case apdu.InsGeneralAuthenticate:
		return p.generalAuthenticate(cmd.P1, cmd.P2, cmd.Data)

	case apdu.InsGetData:
		return p.getData(cmd.P1, cmd.P2)

	case apdu.InsPutData:
		return p.putData(cmd.P1, cmd.P2, cmd.Data)

	case apdu.InsActivateApplet:
		return p.activateApplet(cmd.Data)

	case apdu.InsVerify:
		return p.verify(cmd.P2, cmd.Data)

	default:
		return apdu.Response{SW: apdu.SWFuncNotSupported}
	}
}

func hexByte(b byte) string { return toHex([]byte{b}) }
func hexWord(w uint16) string { return toHex([]byte{byte(w >> 8), byte(w)}) }

func toHex(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0x0F]
	}
	return string(out)
}

// generateKey implements INS=0x46 (spec.md §4.8): generates fresh key
// material for the selected file's declared type/size and stores every
// part, returning the public key (RSA modulus+exponent, or EC point).
func (p *Processor) generateKey(p1, p2 byte, body []byte) apdu.Response {
	fileID := p.FS.Selected()
	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	sizeBits, err := p.FS.FileSize(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}

	switch fileType {
	case constants.FileTypeRSA:
		if len(body) != 0 && !bytesEqual(body, constants.PublicExponentDER) {
			return apdu.Response{SW: apdu.SWIncorrectParamsInData}
		}
		key, err := kernel.GenerateRSA(sizeBits)
		if err != nil {
			return apdu.Response{SW: apdu.SWConditionsNotSat}
		}
		if err := p.storeRSAKey(fileID, key, sizeBits); err != nil {
			return apdu.AsResponse(err)
		}
		modBytes := key.ModulusBytes()
		out := make([]byte, 0, modBytes+8)
		nBytes := make([]byte, modBytes)
		key.Modulus.FillBytes(nBytes)
		out = tlv.AppendTLV(out, 0x81, nBytes)
		eBytes := key.PublicExponent.Bytes()
		out = tlv.AppendTLV(out, 0x82, eBytes)
		return apdu.Response{SW: apdu.SWSuccess, Data: out}

	case constants.FileTypeECNIST, constants.FileTypeECSecp256k1:
		tag := constants.CurveByScalarSize((sizeBits + 7) / 8)
		if fileType == constants.FileTypeECSecp256k1 {
			tag = constants.CurveSecp256k1
		}
		scalarSize := tag.ScalarSize()
		if scalarSize == 0 {
			return apdu.Response{SW: apdu.SWConditionsNotSat}
		}
		dummy := make([]byte, scalarSize)
		dummy[0] = 0x01
		curve, err := ecparam.Bind(fileType, dummy)
		if err != nil {
			return apdu.Response{SW: apdu.SWFuncNotSupported}
		}
		priv, x, y, err := kernel.GenerateEC(curve)
		if err != nil {
			return apdu.Response{SW: apdu.SWConditionsNotSat}
		}
		privBytes := make([]byte, scalarSize)
		priv.FillBytes(privBytes)
		if err := p.KS.WritePart(fileID, keystore.PartECPrivate, privBytes); err != nil {
			return apdu.AsResponse(err)
		}
		point := make([]byte, 1+2*scalarSize)
		point[0] = 0x04
		x.FillBytes(point[1 : 1+scalarSize])
		y.FillBytes(point[1+scalarSize:])
		if err := p.KS.WritePart(fileID, keystore.PartECPublic, point); err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: point}

	default:
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
}

// storeRSAKey writes the CRT parts and the modulus of a freshly generated
// key. A 2048-bit modulus is split across two part-files (spec.md §4.8);
// smaller moduli are stored as a single part. The public exponent is not
// stored; loadRSAKey always uses the fixed constants.PublicExponent.
func (p *Processor) storeRSAKey(fileID uint16, key *kernel.RSAPrivateCRT, sizeBits int) error {
	type part struct {
		id  byte
		val *big.Int
	}
	parts := []part{
		{keystore.PartRSA_P, key.P},
		{keystore.PartRSA_Q, key.Q},
		{keystore.PartRSA_DP, key.DP},
		{keystore.PartRSA_DQ, key.DQ},
		{keystore.PartRSA_QInv, key.QInv},
	}
	for _, pt := range parts {
		if err := p.KS.WritePart(fileID, pt.id, pt.val.Bytes()); err != nil {
			return err
		}
	}

	modBytes := make([]byte, key.ModulusBytes())
	key.Modulus.FillBytes(modBytes)
	if sizeBits == 2048 {
		half := len(modBytes) / 2
		if err := p.KS.WritePart(fileID, keystore.PartRSA_ModulusP1, modBytes[:half]); err != nil {
			return err
		}
		return p.KS.WritePart(fileID, keystore.PartRSA_ModulusP2, modBytes[half:])
	}
	return p.KS.WritePart(fileID, keystore.PartRSA_Modulus, modBytes)
}

// generalAuthenticate implements INS=0x86 (spec.md §4.6): the ECDH
// responder over the currently selected EC key file. §4.6 requires a prior
// MSE SET arming OpECDH against the selected file, and P1=P2=0x00; the
// environment is consumed whether the derivation succeeds or fails.
func (p *Processor) generalAuthenticate(p1, p2 byte, body []byte) apdu.Response {
	if !p.Env.Valid() || p.Env.Operation != OpECDH || p1 != 0x00 || p2 != 0x00 {
		p.Env.Invalidate()
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}
	fileID := p.FS.Selected()
	if fileID != p.Env.KeyFileID {
		p.Env.Invalidate()
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}
	defer p.Env.Consume()

	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	if fileType != constants.FileTypeECNIST && fileType != constants.FileTypeECSecp256k1 {
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
	curve, priv, err := loadECKey(p.KS, fileType, fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	out, err := cryptofmt.ECDHRespond(curve, priv, body)
	if err != nil {
		return apdu.AsResponse(err)
	}
	return apdu.Response{SW: apdu.SWSuccess, Data: out}
}

// GET DATA tag ranges (spec.md §4.9, supplemented per SPEC_FULL.md §3).
const (
	tagRSADescriptor     byte = 0x00
	tagRSAModulus        byte = 0x01
	tagRSAPublicExponent byte = 0x02
	tagCurvePrime        byte = 0x81
	tagCurveA            byte = 0x82
	tagCurveB            byte = 0x83
	tagCurveGenerator    byte = 0x84
	tagCurveOrder        byte = 0x85
	tagECPublicPoint     byte = 0x86
	tagCardID            byte = 0xA0
	tagFileListingLow    byte = 0xA1
	tagFileListingHigh   byte = 0xA6
	tagAccessCondition   byte = 0xAC
	tagCardCapabilities  byte = 0xAA
	tagPINInfoLow        byte = 0xB0
	tagPINInfoHigh       byte = 0xBF
)

// rsaDescriptorAlgo is the algorithm identifier reported in the RSA key
// descriptor (spec.md §4.9, GET DATA P2=0x00).
const rsaDescriptorAlgo uint16 = 0x9200

// getData implements INS=0xCA (spec.md §4.9): P2 selects the datum.
func (p *Processor) getData(p1, p2 byte) apdu.Response {
	switch {
	case p2 == tagRSADescriptor || p2 == tagRSAModulus || p2 == tagRSAPublicExponent:
		return p.getRSADescriptor(p2)

	case p2 >= tagCurvePrime && p2 <= tagCurveOrder:
		return p.getCurveParameter(p2)

	case p2 == tagECPublicPoint:
		return p.getECPublicPoint()

	case p2 == tagCardID:
		return apdu.Response{SW: apdu.SWSuccess, Data: p.FS.CardID()}

	case p2 == tagCardCapabilities:
		return apdu.Response{SW: apdu.SWSuccess, Data: p.FS.CardCapabilities()}

	case p2 >= tagFileListingLow && p2 <= tagFileListingHigh:
		listing, err := p.FS.ListFiles()
		if err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: listing}

	case p2 == tagAccessCondition:
		ac, err := p.FS.AccessCondition(p.FS.Selected())
		if err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: []byte{ac}}

	case p2 >= tagPINInfoLow && p2 <= tagPINInfoHigh:
		info, err := p.FS.PINInfo(p2 & 0x0F)
		if err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: info}

	default:
		return apdu.Response{SW: apdu.SWReferencedDataNotFound}
	}
}

// getRSADescriptor implements GET DATA P2 ∈ {0x00, 0x01, 0x02} (spec.md
// §4.9): the key descriptor, the modulus, and the public exponent of the
// RSA key on the selected file.
func (p *Processor) getRSADescriptor(p2 byte) apdu.Response {
	fileID := p.FS.Selected()
	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	if fileType != constants.FileTypeRSA {
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
	key, err := loadRSAKey(p.KS, fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}

	switch p2 {
	case tagRSAModulus:
		out := make([]byte, key.ModulusBytes())
		key.Modulus.FillBytes(out)
		return apdu.Response{SW: apdu.SWSuccess, Data: out}

	case tagRSAPublicExponent:
		return apdu.Response{SW: apdu.SWSuccess, Data: key.PublicExponent.Bytes()}

	default: // tagRSADescriptor
		sizeBits, err := p.FS.FileSize(fileID)
		if err != nil {
			return apdu.AsResponse(err)
		}
		desc := []byte{
			byte(rsaDescriptorAlgo >> 8), byte(rsaDescriptorAlgo),
			byte(sizeBits >> 8), byte(sizeBits),
			byte(len(key.PublicExponent.Bytes())),
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: desc}
	}
}

// getCurveParameter implements GET DATA P2 ∈ {0x81..0x85} (spec.md §4.9):
// curve-parameter access for the EC key on the selected file. The
// generator is returned Y∥X, matching the reversed orientation spec.md
// §4.5 uses for working curve state.
func (p *Processor) getCurveParameter(p2 byte) apdu.Response {
	fileID := p.FS.Selected()
	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	if fileType != constants.FileTypeECNIST && fileType != constants.FileTypeECSecp256k1 {
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
	curve, _, err := loadECKey(p.KS, fileType, fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	scalarSize := curve.ScalarSize()
	fixed := func(n *big.Int) []byte {
		b := make([]byte, scalarSize)
		n.FillBytes(b)
		return b
	}

	switch p2 {
	case tagCurvePrime:
		return apdu.Response{SW: apdu.SWSuccess, Data: fixed(curve.P)}
	case tagCurveA:
		return apdu.Response{SW: apdu.SWSuccess, Data: fixed(curve.A)}
	case tagCurveB:
		return apdu.Response{SW: apdu.SWSuccess, Data: fixed(curve.B)}
	case tagCurveGenerator:
		return apdu.Response{SW: apdu.SWSuccess, Data: append(fixed(curve.Gy), fixed(curve.Gx)...)}
	default: // tagCurveOrder
		return apdu.Response{SW: apdu.SWSuccess, Data: fixed(curve.N)}
	}
}

// getECPublicPoint implements GET DATA P2=0x86 (spec.md §4.9): the stored
// uncompressed public point, wrapped in the SEQUENCE TLV the wire format
// requires.
func (p *Processor) getECPublicPoint() apdu.Response {
	fileID := p.FS.Selected()
	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	if fileType != constants.FileTypeECNIST && fileType != constants.FileTypeECSecp256k1 {
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
	point, err := p.KS.ReadPart(fileID, keystore.PartECPublic)
	if err != nil {
		return apdu.Response{SW: apdu.SWReferencedDataNotFound}
	}
	return apdu.Response{SW: apdu.SWSuccess, Data: tlv.AppendTLV(nil, 0x30, point)}
}

// PUT DATA P2 ranges (spec.md §4.9, supplemented per SPEC_FULL.md §3).
const (
	p2PINInitLow         byte = 0x01
	p2PINInitHigh        byte = 0x0E
	p2ActivateApplet     byte = 0xE0
	p2KeyUploadLow       byte = 0x80
	p2KeyUploadHigh      byte = 0x8B
	p2KeyUploadSymmetric byte = 0xA0
)

// keyUploadParts maps the PUT DATA key-upload P2 byte (spec.md §4.9) to the
// stored part id it writes (spec.md §3's part-id taxonomy). P2=0xA0
// deliberately reuses keystore.PartSymmetric's own value.
var keyUploadParts = map[byte]byte{
	0x80: keystore.PartRSA_P,
	0x81: keystore.PartRSA_Q,
	0x82: keystore.PartRSA_DP,
	0x83: keystore.PartRSA_DQ,
	0x84: keystore.PartRSA_QInv,
	0x85: keystore.PartRSA_Modulus,
	0x86: keystore.PartRSA_ModulusP1,
	0x87: keystore.PartRSA_ModulusP2,
	0x88: keystore.PartRSA_PublicExponent,
	0x89: keystore.PartRSA_NPrimeP,
	0x8A: keystore.PartRSA_NPrimeQ,
	0x8B: keystore.PartECPrivate,
	p2KeyUploadSymmetric: keystore.PartSymmetric,
}

// putData implements INS=0xDA (spec.md §4.9).
func (p *Processor) putData(p1, p2 byte, body []byte) apdu.Response {
	switch {
	case p2 >= p2PINInitLow && p2 <= p2PINInitHigh:
		if err := p.FS.InitializePIN(p2, body); err != nil {
			return apdu.Response{SW: apdu.SWConditionsNotSat}
		}
		return apdu.Response{SW: apdu.SWSuccess}

	case p2 == p2ActivateApplet:
		if err := p.FS.InitializeApplet(); err != nil {
			return apdu.Response{SW: apdu.SWConditionsNotSat}
		}
		return apdu.Response{SW: apdu.SWSuccess}

	case (p2 >= p2KeyUploadLow && p2 <= p2KeyUploadHigh) || p2 == p2KeyUploadSymmetric:
		return p.uploadKeyPart(keyUploadParts[p2], body)

	default:
		return apdu.Response{SW: apdu.SWIncorrectP1P2}
	}
}

// uploadKeyPart implements the PUT DATA key-upload sub-routing (spec.md
// §4.9): the part byte-length is validated against the selected file's
// declared key size before the part is written.
func (p *Processor) uploadKeyPart(part byte, body []byte) apdu.Response {
	fileID := p.FS.Selected()
	fileType, err := p.FS.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	sizeBits, err := p.FS.FileSize(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	if !validKeyUploadLength(fileType, sizeBits, part, len(body)) {
		return apdu.Response{SW: apdu.SWWrongLength}
	}
	if err := p.KS.WritePart(fileID, part, body); err != nil {
		return apdu.AsResponse(err)
	}
	return apdu.Response{SW: apdu.SWSuccess}
}

// validKeyUploadLength enforces spec.md §4.9's size rule: RSA CRT parts are
// sized in units of 16 bits of the modulus (half the modulus length), the
// modulus itself in units of 8; EC private scalars follow the curve's
// scalar size (spec.md §4.5); symmetric keys follow the DES/AES sizes the
// cipher path accepts (spec.md §4.7).
func validKeyUploadLength(fileType byte, sizeBits int, part byte, n int) bool {
	switch part {
	case keystore.PartRSA_P, keystore.PartRSA_Q, keystore.PartRSA_DP, keystore.PartRSA_DQ,
		keystore.PartRSA_QInv, keystore.PartRSA_NPrimeP, keystore.PartRSA_NPrimeQ:
		return fileType == constants.FileTypeRSA && n == sizeBits/16

	case keystore.PartRSA_Modulus:
		return fileType == constants.FileTypeRSA && n == sizeBits/8

	case keystore.PartRSA_ModulusP1, keystore.PartRSA_ModulusP2:
		return fileType == constants.FileTypeRSA && sizeBits == 2048 && n == sizeBits/16

	case keystore.PartRSA_PublicExponent:
		return fileType == constants.FileTypeRSA && n >= 1 && n <= 4

	case keystore.PartECPrivate:
		return (fileType == constants.FileTypeECNIST || fileType == constants.FileTypeECSecp256k1) &&
			n == (sizeBits+7)/8

	case keystore.PartSymmetric:
		switch fileType {
		case constants.FileTypeDES:
			return n == 7 || n == 8 || n == 16 || n == 24
		case constants.FileTypeAES:
			return n == 16 || n == 24 || n == 32
		default:
			return false
		}

	default:
		return false
	}
}

// activateApplet implements INS=0x44, the supplemented applet lifecycle
// entry point (SPEC_FULL.md §3): equivalent to PUT DATA P2=0xE0, offered
// as its own instruction since that is how MyEID-compatible clients invoke
// it.
func (p *Processor) activateApplet(body []byte) apdu.Response {
	if len(body) != 0 {
		return apdu.Response{SW: apdu.SWWrongLength}
	}
	if err := p.FS.InitializeApplet(); err != nil {
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}
	return apdu.Response{SW: apdu.SWSuccess}
}

// verify implements INS=0x20: P2 low nibble selects the PIN reference.
func (p *Processor) verify(p2 byte, body []byte) apdu.Response {
	ok, err := p.FS.VerifyPIN(p2&0x0F, body)
	if err != nil {
		return apdu.Response{SW: apdu.SWReferencedDataNotFound}
	}
	if !ok {
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}
	return apdu.Response{SW: apdu.SWSuccess}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
