package session

import (
	"math/big"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/cryptofmt"
	"github.com/Jakuje/oseid/internal/ecparam"
	"github.com/Jakuje/oseid/internal/kernel"
	"github.com/Jakuje/oseid/internal/keystore"
)

// PSO P1/P2 pairs, ISO 7816-8 COMPUTE DIGITAL SIGNATURE / DECIPHER /
// ENCIPHER (spec.md §4.2).
const (
	psoP1Sign byte = 0x9E
	psoP2Sign byte = 0x9A

	psoP1Decipher byte = 0x80
	psoP2Decipher byte = 0x86

	psoP1Encipher byte = 0x86
	psoP2Encipher byte = 0x80
)

// claChained marks a command as the non-final part of a chain (ISO 7816-4
// §5.1.1); used for the two-part ENVELOPE decipher (spec.md §4.3).
const claChained byte = 0x10

// PerformSecurityOperation implements INS=0x2A (spec.md §4.2/§4.3). It
// consults env for the algorithm and key file armed by the prior MSE, and
// consumes env on every terminal success or failure.
func PerformSecurityOperation(env *Environment, resp *ResponseBuffer, fs FileSystem, ks KeyStore, cla, p1, p2 byte, body []byte) apdu.Response {
	if !env.Valid() {
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}

	// §4.2 requires the currently selected file to match the key file the
	// environment was armed against; a SET against one file followed by an
	// operation against another must fail, not silently use the armed file.
	if fs.Selected() != env.KeyFileID {
		env.Invalidate()
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}

	switch {
	case p1 == psoP1Sign && p2 == psoP2Sign:
		return doSign(env, fs, ks, body)

	case p1 == psoP1Decipher && p2 == psoP2Decipher:
		return doDecipher(env, resp, fs, ks, cla, body)

	case p1 == psoP1Encipher && p2 == psoP2Encipher:
		return doEncipher(env, fs, ks, body)

	default:
		env.Invalidate()
		return apdu.Response{SW: apdu.SWIncorrectP1P2}
	}
}

func doSign(env *Environment, fs FileSystem, ks KeyStore, body []byte) apdu.Response {
	defer env.Consume()
	if env.Operation != OpSign {
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}

	fileType, err := fs.FileType(env.KeyFileID)
	if err != nil {
		return apdu.AsResponse(err)
	}

	switch fileType {
	case constants.FileTypeRSA:
		key, err := loadRSAKey(ks, env.KeyFileID)
		if err != nil {
			return apdu.AsResponse(err)
		}
		out, err := cryptofmt.RSARaw(key, body, rsaFlagForAlgo(env.SignAlgo))
		if err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: out}

	case constants.FileTypeECNIST, constants.FileTypeECSecp256k1:
		curve, priv, err := loadECKey(ks, fileType, env.KeyFileID)
		if err != nil {
			return apdu.AsResponse(err)
		}
		out, err := cryptofmt.SignECRaw(curve, priv, body)
		if err != nil {
			return apdu.AsResponse(err)
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: out}

	default:
		return apdu.Response{SW: apdu.SWIncorrectFileType}
	}
}

func doEncipher(env *Environment, fs FileSystem, ks KeyStore, body []byte) apdu.Response {
	defer env.Consume()
	if env.Operation != OpEncrypt {
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}
	return symmetricRun(fs, ks, env.KeyFileID, body, true)
}

// doDecipher implements both the single-command path and the two-part
// ENVELOPE continuation (spec.md §4.3): a chained command (CLA bit
// claChained set) stages body in resp and reports success with no data;
// the final command appends its body to the staged fragment before running
// the cipher.
func doDecipher(env *Environment, resp *ResponseBuffer, fs FileSystem, ks KeyStore, cla byte, body []byte) apdu.Response {
	if env.Operation != OpDecrypt {
		env.Invalidate()
		resp.Clear()
		return apdu.Response{SW: apdu.SWConditionsNotSat}
	}

	if cla&claChained != 0 {
		resp.StageFragment(body)
		return apdu.Response{SW: apdu.SWSuccess}
	}

	full := body
	if resp.Flag == RTmp {
		full = append(append([]byte(nil), resp.Fragment...), body...)
	}
	resp.Clear()
	defer env.Consume()

	fileType, err := fs.FileType(env.KeyFileID)
	if err != nil {
		return apdu.AsResponse(err)
	}

	switch fileType {
	case constants.FileTypeRSA:
		key, err := loadRSAKey(ks, env.KeyFileID)
		if err != nil {
			return apdu.AsResponse(err)
		}
		out, err := cryptofmt.RSARaw(key, full, cryptofmt.RSAFlagRaw)
		if err != nil {
			return apdu.AsResponse(err)
		}
		if env.SignAlgo == constants.AlgoRSADigestInfo {
			out, err = cryptofmt.RSADecryptUnwrap(out)
			if err != nil {
				return apdu.AsResponse(err)
			}
		}
		return apdu.Response{SW: apdu.SWSuccess, Data: out}

	default:
		return symmetricRun(fs, ks, env.KeyFileID, full, false)
	}
}

func symmetricRun(fs FileSystem, ks KeyStore, fileID uint16, block []byte, encrypt bool) apdu.Response {
	fileType, err := fs.FileType(fileID)
	if err != nil {
		return apdu.AsResponse(err)
	}
	key, err := ks.ReadPart(fileID, keystore.PartSymmetric)
	if err != nil {
		return apdu.Response{SW: apdu.SWReferencedDataNotFound}
	}
	out, err := cryptofmt.SymmetricRun(fileType, key, block, encrypt)
	if err != nil {
		return apdu.AsResponse(err)
	}
	return apdu.Response{SW: apdu.SWSuccess, Data: out}
}

func rsaFlagForAlgo(algo byte) cryptofmt.RSAFlag {
	switch algo {
	case constants.AlgoRSASHA1:
		return cryptofmt.RSAFlagSHA1
	case constants.AlgoRSADigestInfo:
		return cryptofmt.RSAFlagDigestInfo
	default:
		return cryptofmt.RSAFlagRaw
	}
}

// loadRSAKey assembles the CRT private key from its stored parts
// (spec.md §3). The modulus is read back as a single part, or reassembled
// from its two halves when generateKey split it (spec.md §4.8, 2048-bit
// modulus).
func loadRSAKey(ks KeyStore, fileID uint16) (*kernel.RSAPrivateCRT, error) {
	parts := map[byte]**big.Int{}
	key := &kernel.RSAPrivateCRT{}
	parts[keystore.PartRSA_P] = &key.P
	parts[keystore.PartRSA_Q] = &key.Q
	parts[keystore.PartRSA_DP] = &key.DP
	parts[keystore.PartRSA_DQ] = &key.DQ
	parts[keystore.PartRSA_QInv] = &key.QInv

	for part, dst := range parts {
		b, err := ks.ReadPart(fileID, part)
		if err != nil {
			return nil, &apdu.StatusError{SW: apdu.SWReferencedDataNotFound, Note: "missing rsa key part"}
		}
		*dst = new(big.Int).SetBytes(b)
	}

	modulus, err := readRSAModulus(ks, fileID)
	if err != nil {
		return nil, err
	}
	key.Modulus = modulus
	key.PublicExponent = big.NewInt(constants.PublicExponent)
	return key, nil
}

// readRSAModulus reads the modulus back as a single part, falling back to
// reassembling the two halves a 2048-bit key was split into.
func readRSAModulus(ks KeyStore, fileID uint16) (*big.Int, error) {
	if b, err := ks.ReadPart(fileID, keystore.PartRSA_Modulus); err == nil {
		return new(big.Int).SetBytes(b), nil
	}
	p1, err1 := ks.ReadPart(fileID, keystore.PartRSA_ModulusP1)
	p2, err2 := ks.ReadPart(fileID, keystore.PartRSA_ModulusP2)
	if err1 != nil || err2 != nil {
		return nil, &apdu.StatusError{SW: apdu.SWReferencedDataNotFound, Note: "missing rsa modulus part"}
	}
	return new(big.Int).SetBytes(append(append([]byte(nil), p1...), p2...)), nil
}

// loadECKey resolves curve parameters and the stored private scalar for
// fileID (spec.md §4.5 prepare_ec_param).
func loadECKey(ks KeyStore, fileType byte, fileID uint16) (*ecparam.Curve, *big.Int, error) {
	scalar, err := ks.ReadPart(fileID, keystore.PartECPrivate)
	if err != nil {
		return nil, nil, &apdu.StatusError{SW: apdu.SWReferencedDataNotFound, Note: "missing ec private key"}
	}
	curve, err := ecparam.Bind(fileType, scalar)
	if err != nil {
		return nil, nil, &apdu.StatusError{SW: apdu.SWFuncNotSupported, Note: "unsupported curve"}
	}
	return curve, new(big.Int).SetBytes(scalar), nil
}
