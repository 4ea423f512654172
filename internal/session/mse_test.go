package session

import (
	"testing"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/tlv"
)

func crdoBody(algo byte, fileID uint16) []byte {
	var body []byte
	body = tlv.AppendTLV(body, crdoAlgorithm, []byte{algo})
	body = tlv.AppendTLV(body, crdoKeyFileID, []byte{byte(fileID >> 8), byte(fileID)})
	return body
}

func TestManageSecurityEnvironmentArmsSignEnvironment(t *testing.T) {
	var env Environment
	resp := ManageSecurityEnvironment(&env, p1Set1, p2Sign, crdoBody(constants.AlgoRSASHA1, 0x1001))
	if resp.SW != apdu.SWSuccess {
		t.Fatalf("expected success, got SW=%04X", resp.SW)
	}
	if !env.Valid() || env.Operation != OpSign || env.KeyFileID != 0x1001 {
		t.Fatalf("unexpected environment: %+v", env)
	}
}

func TestManageSecurityEnvironmentDecipherVsEncipherByP1(t *testing.T) {
	var env Environment
	resp := ManageSecurityEnvironment(&env, p1Set2, p2Enc, crdoBody(constants.AlgoRSADigestInfo, 0x1001))
	if resp.SW != apdu.SWSuccess || env.Operation != OpEncrypt {
		t.Fatalf("expected OpEncrypt for P1=0x81, got %+v (SW=%04X)", env, resp.SW)
	}

	var env2 Environment
	resp2 := ManageSecurityEnvironment(&env2, p1Set1, p2Enc, crdoBody(constants.AlgoRSADigestInfo, 0x1001))
	if resp2.SW != apdu.SWSuccess || env2.Operation != OpDecrypt {
		t.Fatalf("expected OpDecrypt for P1=0x41, got %+v (SW=%04X)", env2, resp2.SW)
	}
}

func TestManageSecurityEnvironmentRestoreInvalidatesWithoutArming(t *testing.T) {
	var env Environment
	ManageSecurityEnvironment(&env, p1Set1, p2Sign, crdoBody(constants.AlgoRSASHA1, 0x1001))
	resp := ManageSecurityEnvironment(&env, p1Restore, 0x00, nil)
	if resp.SW != apdu.SWSuccess {
		t.Fatalf("expected RESTORE to succeed, got SW=%04X", resp.SW)
	}
	if env.Valid() {
		t.Fatalf("expected RESTORE to leave the environment invalid")
	}
}

func TestManageSecurityEnvironmentRejectsUnknownAlgorithm(t *testing.T) {
	var env Environment
	resp := ManageSecurityEnvironment(&env, p1Set1, p2Sign, crdoBody(0xEE, 0x1001))
	if resp.SW != apdu.SWFuncNotSupported {
		t.Fatalf("expected SWFuncNotSupported, got SW=%04X", resp.SW)
	}
	if env.Valid() {
		t.Fatalf("expected environment to stay invalid on algorithm rejection")
	}
}

func TestManageSecurityEnvironmentAliasP1A4(t *testing.T) {
	// P1=0xA4 is tolerated as an alias for P1=0x41, P2=0xA4 (spec.md §4.1),
	// so the caller's own P2 is overridden and the environment arms for ECDH.
	var env Environment
	resp := ManageSecurityEnvironment(&env, p1Alias, p2Sign, crdoBody(constants.AlgoECDSA, 0x1001))
	if resp.SW != apdu.SWSuccess || env.Operation != OpECDH {
		t.Fatalf("expected alias P1=0xA4 to arm OpECDH, got %+v (SW=%04X)", env, resp.SW)
	}
}

func TestManageSecurityEnvironmentRejectsMissingKeyFileID(t *testing.T) {
	var env Environment
	var body []byte
	body = tlv.AppendTLV(body, crdoAlgorithm, []byte{constants.AlgoRSASHA1})
	resp := ManageSecurityEnvironment(&env, p1Set1, p2Sign, body)
	if resp.SW != apdu.SWFuncNotSupported {
		t.Fatalf("expected SWFuncNotSupported for missing key file id, got SW=%04X", resp.SW)
	}
}
