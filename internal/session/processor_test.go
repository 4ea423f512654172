package session

import (
	"math/big"
	"testing"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/tlv"
)

func buildAPDU(cla, ins, p1, p2 byte, data []byte) []byte {
	if len(data) == 0 {
		return []byte{cla, ins, p1, p2}
	}
	out := []byte{cla, ins, p1, p2, byte(len(data))}
	return append(out, data...)
}

func newTestProcessor(t *testing.T) (*Processor, *keystore.Store) {
	t.Helper()
	store, err := keystore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	return NewProcessor(store, nil), store
}

func TestProcessorRSASignRoundTrip(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	genResp := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if genResp.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", genResp.SW)
	}
	nBytes, ok := tlv.Find(genResp.Data, 0x81)
	if !ok {
		t.Fatalf("missing modulus tag in GENERATE KEY response")
	}
	eBytes, ok := tlv.Find(genResp.Data, 0x82)
	if !ok {
		t.Fatalf("missing exponent tag in GENERATE KEY response")
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	mseBody := crdoBody(constants.AlgoRSASHA1, fileID)
	mseResp := proc.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2Sign, mseBody))
	if mseResp.SW != apdu.SWSuccess {
		t.Fatalf("MSE SET failed: SW=%04X", mseResp.SW)
	}

	digest := make([]byte, 20)
	for i := range digest {
		digest[i] = byte(i + 1)
	}
	signResp := proc.Process(buildAPDU(0x00, apdu.InsPerformSecurityOp, psoP1Sign, psoP2Sign, digest))
	if signResp.SW != apdu.SWSuccess {
		t.Fatalf("PSO sign failed: SW=%04X", signResp.SW)
	}

	sigInt := new(big.Int).SetBytes(signResp.Data)
	recovered := new(big.Int).Exp(sigInt, e, n)
	recBytes := make([]byte, len(nBytes))
	recovered.FillBytes(recBytes)
	if recBytes[0] != 0x00 || recBytes[1] != 0x01 {
		t.Fatalf("expected PKCS#1 type-1 header in recovered signature, got % X", recBytes[:2])
	}
	if recBytes[len(recBytes)-20] != digest[0] {
		t.Fatalf("digest not recovered at expected offset")
	}

	// The environment is consumed by a successful PSO; a second sign with no
	// new MSE SET must fail.
	again := proc.Process(buildAPDU(0x00, apdu.InsPerformSecurityOp, psoP1Sign, psoP2Sign, digest))
	if again.SW != apdu.SWConditionsNotSat {
		t.Fatalf("expected SWConditionsNotSat after environment consumed, got SW=%04X", again.SW)
	}
}

func TestProcessorRSASignRejectsWrongLengthMessage(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)
	proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))

	mseBody := crdoBody(constants.AlgoRSARaw, fileID)
	proc.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2Sign, mseBody))

	resp := proc.Process(buildAPDU(0x00, apdu.InsPerformSecurityOp, psoP1Sign, psoP2Sign, []byte{0x01, 0x02, 0x03}))
	if resp.SW != apdu.SWConditionsNotSat {
		t.Fatalf("expected SWConditionsNotSat for wrong-length raw message, got SW=%04X", resp.SW)
	}
}

func TestProcessorMSEBadAlgorithmFails(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	mseBody := crdoBody(0xEE, fileID)
	resp := proc.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2Sign, mseBody))
	if resp.SW != apdu.SWFuncNotSupported {
		t.Fatalf("expected SWFuncNotSupported, got SW=%04X", resp.SW)
	}
}

func TestProcessorECDHBetweenTwoCards(t *testing.T) {
	procA, storeA := newTestProcessor(t)
	procB, storeB := newTestProcessor(t)
	const fileID = 0x2001

	for _, s := range []*keystore.Store{storeA, storeB} {
		if err := s.CreateFile(fileID, constants.FileTypeECNIST, 256, 0); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
		s.SetSelected(fileID)
	}

	genA := procA.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	genB := procB.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if genA.SW != apdu.SWSuccess || genB.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: A=%04X B=%04X", genA.SW, genB.SW)
	}

	mseBody := crdoBody(constants.AlgoECDSA, fileID)
	mseA := procA.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2ECDH, mseBody))
	if mseA.SW != apdu.SWSuccess {
		t.Fatalf("MSE SET (A) failed: SW=%04X", mseA.SW)
	}

	bodyForA := tlv.AppendTLV(nil, 0x85, genB.Data)
	bodyForA = tlv.AppendTLV(nil, 0x7C, bodyForA)
	authA := procA.Process(buildAPDU(0x00, apdu.InsGeneralAuthenticate, 0x00, 0x00, bodyForA))
	if authA.SW != apdu.SWSuccess {
		t.Fatalf("GENERAL AUTHENTICATE (A) failed: SW=%04X", authA.SW)
	}

	mseB := procB.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2ECDH, mseBody))
	if mseB.SW != apdu.SWSuccess {
		t.Fatalf("MSE SET (B) failed: SW=%04X", mseB.SW)
	}

	bodyForB := tlv.AppendTLV(nil, 0x85, genA.Data)
	bodyForB = tlv.AppendTLV(nil, 0x7C, bodyForB)
	authB := procB.Process(buildAPDU(0x00, apdu.InsGeneralAuthenticate, 0x00, 0x00, bodyForB))
	if authB.SW != apdu.SWSuccess {
		t.Fatalf("GENERAL AUTHENTICATE (B) failed: SW=%04X", authB.SW)
	}

	if len(authA.Data) != len(authB.Data) {
		t.Fatalf("shared secret length mismatch")
	}
	for i := range authA.Data {
		if authA.Data[i] != authB.Data[i] {
			t.Fatalf("shared secret mismatch at byte %d", i)
		}
	}
}

func TestProcessorGeneralAuthenticateWithoutMSESetFails(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x2001
	if err := store.CreateFile(fileID, constants.FileTypeECNIST, 256, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}

	body := tlv.AppendTLV(nil, 0x85, gen.Data)
	body = tlv.AppendTLV(nil, 0x7C, body)
	resp := proc.Process(buildAPDU(0x00, apdu.InsGeneralAuthenticate, 0x00, 0x00, body))
	if resp.SW != apdu.SWConditionsNotSat {
		t.Fatalf("expected SWConditionsNotSat with no prior MSE SET, got SW=%04X", resp.SW)
	}
}

func TestProcessorGeneralAuthenticateRejectsFileIDMismatch(t *testing.T) {
	proc, store := newTestProcessor(t)
	const armedFile = 0x2001
	const selectedFile = 0x2002
	for _, id := range []uint16{armedFile, selectedFile} {
		if err := store.CreateFile(id, constants.FileTypeECNIST, 256, 0); err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
	}
	store.SetSelected(armedFile)
	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}

	mseBody := crdoBody(constants.AlgoECDSA, armedFile)
	mse := proc.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2ECDH, mseBody))
	if mse.SW != apdu.SWSuccess {
		t.Fatalf("MSE SET failed: SW=%04X", mse.SW)
	}

	store.SetSelected(selectedFile)
	body := tlv.AppendTLV(nil, 0x85, gen.Data)
	body = tlv.AppendTLV(nil, 0x7C, body)
	resp := proc.Process(buildAPDU(0x00, apdu.InsGeneralAuthenticate, 0x00, 0x00, body))
	if resp.SW != apdu.SWConditionsNotSat {
		t.Fatalf("expected SWConditionsNotSat when the armed file is no longer selected, got SW=%04X", resp.SW)
	}
}

func TestProcessorGetDataRSADescriptorModulusAndExponent(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)
	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}
	nBytes, _ := tlv.Find(gen.Data, 0x81)
	eBytes, _ := tlv.Find(gen.Data, 0x82)

	descResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagRSADescriptor, nil))
	if descResp.SW != apdu.SWSuccess || len(descResp.Data) != 5 {
		t.Fatalf("unexpected descriptor response: SW=%04X data=%x", descResp.SW, descResp.Data)
	}
	if descResp.Data[0] != 0x92 || descResp.Data[1] != 0x00 {
		t.Fatalf("expected algo 0x9200 in descriptor, got % X", descResp.Data[:2])
	}
	bits := uint16(descResp.Data[2])<<8 | uint16(descResp.Data[3])
	if bits != 512 {
		t.Fatalf("expected 512-bit descriptor, got %d", bits)
	}

	modResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagRSAModulus, nil))
	if modResp.SW != apdu.SWSuccess || !bytesEqual(modResp.Data, nBytes) {
		t.Fatalf("unexpected modulus response: SW=%04X", modResp.SW)
	}

	expResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagRSAPublicExponent, nil))
	if expResp.SW != apdu.SWSuccess || !bytesEqual(expResp.Data, eBytes) {
		t.Fatalf("unexpected exponent response: SW=%04X", expResp.SW)
	}
}

func TestProcessorGetDataCurveParametersAndPublicPoint(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x2001
	if err := store.CreateFile(fileID, constants.FileTypeECNIST, 256, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)
	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}

	primeResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagCurvePrime, nil))
	if primeResp.SW != apdu.SWSuccess || len(primeResp.Data) != 32 {
		t.Fatalf("unexpected curve prime response: SW=%04X len=%d", primeResp.SW, len(primeResp.Data))
	}

	genResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagCurveGenerator, nil))
	if genResp.SW != apdu.SWSuccess || len(genResp.Data) != 64 {
		t.Fatalf("unexpected generator response: SW=%04X len=%d", genResp.SW, len(genResp.Data))
	}

	pointResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagECPublicPoint, nil))
	if pointResp.SW != apdu.SWSuccess {
		t.Fatalf("GET DATA (EC point) failed: SW=%04X", pointResp.SW)
	}
	inner, ok := tlv.Find(pointResp.Data, 0x30)
	if !ok || !bytesEqual(inner, gen.Data) {
		t.Fatalf("expected EC point TLV to wrap the generated point, got % X", pointResp.Data)
	}
}

func TestProcessorGetDataUnknownSelectorReturnsReferencedDataNotFound(t *testing.T) {
	proc, _ := newTestProcessor(t)
	resp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, 0x7F, nil))
	if resp.SW != apdu.SWReferencedDataNotFound {
		t.Fatalf("expected SWReferencedDataNotFound for an unmatched selector, got SW=%04X", resp.SW)
	}
}

func TestProcessorPutDataUploadsRSAKeyParts(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	p := make([]byte, 32)
	p[0] = 0x01
	resp := proc.Process(buildAPDU(0x00, apdu.InsPutData, 0x01, 0x80, p))
	if resp.SW != apdu.SWSuccess {
		t.Fatalf("PUT DATA (P) failed: SW=%04X", resp.SW)
	}

	stored, err := store.ReadPart(fileID, keystore.PartRSA_P)
	if err != nil || !bytesEqual(stored, p) {
		t.Fatalf("expected uploaded P to be stored, err=%v stored=%x", err, stored)
	}

	wrongSize := make([]byte, 31)
	wrongResp := proc.Process(buildAPDU(0x00, apdu.InsPutData, 0x01, 0x80, wrongSize))
	if wrongResp.SW != apdu.SWWrongLength {
		t.Fatalf("expected SWWrongLength for a part mismatched to the file's declared key size, got SW=%04X", wrongResp.SW)
	}
}

func TestProcessorPutDataUploadsSymmetricKey(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x3001
	if err := store.CreateFile(fileID, constants.FileTypeAES, 128, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	resp := proc.Process(buildAPDU(0x00, apdu.InsPutData, 0x01, 0xA0, key))
	if resp.SW != apdu.SWSuccess {
		t.Fatalf("PUT DATA (symmetric) failed: SW=%04X", resp.SW)
	}

	badKey := make([]byte, 10)
	badResp := proc.Process(buildAPDU(0x00, apdu.InsPutData, 0x01, 0xA0, badKey))
	if badResp.SW != apdu.SWWrongLength {
		t.Fatalf("expected SWWrongLength for an unsupported AES key length, got SW=%04X", badResp.SW)
	}
}

func TestProcessorGenerateKeySplitsTwoThousandFortyEightBitModulus(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 2048, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)

	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}
	nBytes, _ := tlv.Find(gen.Data, 0x81)

	if _, err := store.ReadPart(fileID, keystore.PartRSA_Modulus); err == nil {
		t.Fatalf("expected no single-part modulus for a 2048-bit key")
	}
	p1, err := store.ReadPart(fileID, keystore.PartRSA_ModulusP1)
	if err != nil {
		t.Fatalf("ReadPart(ModulusP1): %v", err)
	}
	p2, err := store.ReadPart(fileID, keystore.PartRSA_ModulusP2)
	if err != nil {
		t.Fatalf("ReadPart(ModulusP2): %v", err)
	}
	if len(p1) != len(nBytes)/2 || len(p2) != len(nBytes)/2 {
		t.Fatalf("expected each modulus half to be %d bytes, got %d and %d", len(nBytes)/2, len(p1), len(p2))
	}
	if !bytesEqual(append(append([]byte(nil), p1...), p2...), nBytes) {
		t.Fatalf("expected the two halves to reassemble into the reported modulus")
	}

	modResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x01, tagRSAModulus, nil))
	if modResp.SW != apdu.SWSuccess || !bytesEqual(modResp.Data, nBytes) {
		t.Fatalf("GET DATA modulus did not reassemble the split halves: SW=%04X", modResp.SW)
	}
}

func TestProcessorTwoPartEnvelopeDecipher(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)
	gen := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil))
	if gen.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", gen.SW)
	}
	nBytes, _ := tlv.Find(gen.Data, 0x81)
	eBytes, _ := tlv.Find(gen.Data, 0x82)
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	plain := new(big.Int).SetBytes([]byte("two-part envelope payload"))
	plain.Mod(plain, n)
	cipherInt := new(big.Int).Exp(plain, e, n)
	cipherBytes := make([]byte, len(nBytes))
	cipherInt.FillBytes(cipherBytes)

	mseBody := crdoBody(constants.AlgoRSARaw, fileID)
	mse := proc.Process(buildAPDU(0x00, apdu.InsManageSecurityEnv, p1Set1, p2Enc, mseBody))
	if mse.SW != apdu.SWSuccess {
		t.Fatalf("MSE SET failed: SW=%04X", mse.SW)
	}

	split := len(cipherBytes) / 2
	first := proc.Process(buildAPDU(claChained, apdu.InsPerformSecurityOp, psoP1Decipher, psoP2Decipher, cipherBytes[:split]))
	if first.SW != apdu.SWSuccess || len(first.Data) != 0 {
		t.Fatalf("expected empty-data success for chained fragment, got SW=%04X data=%x", first.SW, first.Data)
	}

	second := proc.Process(buildAPDU(0x00, apdu.InsPerformSecurityOp, psoP1Decipher, psoP2Decipher, cipherBytes[split:]))
	if second.SW != apdu.SWSuccess {
		t.Fatalf("expected success completing the envelope, got SW=%04X", second.SW)
	}
	recovered := new(big.Int).SetBytes(second.Data)
	if recovered.Cmp(plain) != 0 {
		t.Fatalf("decrypted value mismatch: got %s want %s", recovered.String(), plain.String())
	}
}

func TestProcessorGenerateKeyThenGetDataRoundTrip(t *testing.T) {
	proc, store := newTestProcessor(t)
	const fileID = 0x1001
	if err := store.CreateFile(fileID, constants.FileTypeRSA, 512, 0x05); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	store.SetSelected(fileID)
	if resp := proc.Process(buildAPDU(0x00, apdu.InsGenerateKey, 0x00, 0x00, nil)); resp.SW != apdu.SWSuccess {
		t.Fatalf("GENERATE KEY failed: SW=%04X", resp.SW)
	}

	listResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x00, tagFileListingLow, nil))
	if listResp.SW != apdu.SWSuccess {
		t.Fatalf("GET DATA (listing) failed: SW=%04X", listResp.SW)
	}
	found := false
	for i := 0; i+2 < len(listResp.Data); i += 3 {
		id := uint16(listResp.Data[i])<<8 | uint16(listResp.Data[i+1])
		if id == fileID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected file %04X in listing, got % X", fileID, listResp.Data)
	}

	acResp := proc.Process(buildAPDU(0x00, apdu.InsGetData, 0x00, tagAccessCondition, nil))
	if acResp.SW != apdu.SWSuccess || len(acResp.Data) != 1 || acResp.Data[0] != 0x05 {
		t.Fatalf("unexpected access condition response: SW=%04X data=%x", acResp.SW, acResp.Data)
	}
}

func TestProcessorActivateAppletAndPINLifecycle(t *testing.T) {
	proc, _ := newTestProcessor(t)

	resp := proc.Process(buildAPDU(0x00, apdu.InsActivateApplet, 0x00, 0x00, nil))
	if resp.SW != apdu.SWSuccess {
		t.Fatalf("ACTIVATE APPLET failed: SW=%04X", resp.SW)
	}

	pin := []byte("1234")
	put := proc.Process(buildAPDU(0x00, apdu.InsPutData, 0x00, 0x01, pin))
	if put.SW != apdu.SWSuccess {
		t.Fatalf("PUT DATA (PIN init) failed: SW=%04X", put.SW)
	}

	verify := proc.Process(buildAPDU(0x00, apdu.InsVerify, 0x00, 0x01, pin))
	if verify.SW != apdu.SWSuccess {
		t.Fatalf("VERIFY failed: SW=%04X", verify.SW)
	}

	wrong := proc.Process(buildAPDU(0x00, apdu.InsVerify, 0x00, 0x01, []byte("0000")))
	if wrong.SW != apdu.SWConditionsNotSat {
		t.Fatalf("expected SWConditionsNotSat for wrong PIN, got SW=%04X", wrong.SW)
	}
}
