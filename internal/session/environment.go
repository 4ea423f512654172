// Package session is the APDU-level state machine: the security
// environment (spec.md §4.1), the PERFORM SECURITY OPERATION dispatcher
// (spec.md §4.2), GENERATE KEY (spec.md §4.8), GET DATA/PUT DATA
// (spec.md §4.9), and the response-staging buffer (spec.md §3). It is the
// "Session" of this module the same way pkg/ntag424.Session is the
// teacher's authenticated-channel state — except this Session is the
// state the *card* keeps about the next cryptographic command, not a
// client's view of an authenticated tag.
package session

// Operation is the armed security-environment operation (spec.md §3).
type Operation int

const (
	OpNone Operation = iota
	OpSign
	OpDecrypt
	OpEncrypt
	OpECDH
)

// Environment is the process-wide, single-owner security environment
// (spec.md §3). A zero Environment is invalid (operation=OpNone, valid=false).
type Environment struct {
	valid     bool
	Operation Operation
	SignAlgo  byte
	KeyFileID uint16
	IVPresent bool
}

// Valid reports whether a SET has fully armed this environment.
func (e *Environment) Valid() bool { return e.valid }

// Invalidate clears the environment. Called on session reset, on entry to
// every SET/RESTORE, and on any operation failure (spec.md §3, §7).
func (e *Environment) Invalidate() {
	*e = Environment{}
}

// arm marks the environment valid after a successful SET (spec.md §4.1).
func (e *Environment) arm(op Operation, signAlgo byte, keyFileID uint16, ivPresent bool) {
	e.valid = true
	e.Operation = op
	e.SignAlgo = signAlgo
	e.KeyFileID = keyFileID
	e.IVPresent = ivPresent
}

// Consume clears the environment after a successful operation. spec.md §7
// documents this as the conservative default; chaining is not implemented.
func (e *Environment) Consume() { e.Invalidate() }
