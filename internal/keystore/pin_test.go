package keystore

import "testing"

func TestPINInfoReportsUninitializedBeforeInit(t *testing.T) {
	store := openTestStore(t)
	info, err := store.PINInfo(1)
	if err != nil {
		t.Fatalf("PINInfo: %v", err)
	}
	if info[0] != 0 {
		t.Fatalf("expected uninitialized flag 0, got %d", info[0])
	}
}

func TestInitializePINThenVerifySucceeds(t *testing.T) {
	store := openTestStore(t)
	pin := []byte("1234")
	if err := store.InitializePIN(1, pin); err != nil {
		t.Fatalf("InitializePIN: %v", err)
	}

	ok, err := store.VerifyPIN(1, pin)
	if err != nil {
		t.Fatalf("VerifyPIN: %v", err)
	}
	if !ok {
		t.Fatalf("expected correct PIN to verify")
	}

	info, err := store.PINInfo(1)
	if err != nil {
		t.Fatalf("PINInfo: %v", err)
	}
	if info[0] != 1 || int(info[1]) != DefaultPINMaxTries {
		t.Fatalf("unexpected PINInfo after successful verify: %v", info)
	}
}

func TestVerifyPINDecrementsTriesOnMismatch(t *testing.T) {
	store := openTestStore(t)
	if err := store.InitializePIN(2, []byte("1111")); err != nil {
		t.Fatalf("InitializePIN: %v", err)
	}

	ok, err := store.VerifyPIN(2, []byte("9999"))
	if err != nil {
		t.Fatalf("VerifyPIN: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch to fail verification")
	}

	info, err := store.PINInfo(2)
	if err != nil {
		t.Fatalf("PINInfo: %v", err)
	}
	if int(info[1]) != DefaultPINMaxTries-1 {
		t.Fatalf("expected tries-left %d, got %d", DefaultPINMaxTries-1, info[1])
	}
}

func TestVerifyPINBlocksAfterTriesExhausted(t *testing.T) {
	store := openTestStore(t)
	if err := store.InitializePIN(3, []byte("1111")); err != nil {
		t.Fatalf("InitializePIN: %v", err)
	}
	for i := 0; i < DefaultPINMaxTries; i++ {
		if _, err := store.VerifyPIN(3, []byte("wrong")); err != nil {
			t.Fatalf("VerifyPIN attempt %d: %v", i, err)
		}
	}
	if _, err := store.VerifyPIN(3, []byte("1111")); err == nil {
		t.Fatalf("expected PIN blocked after exhausting tries")
	}
}
