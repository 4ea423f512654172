package keystore

// Key-part identifiers, keyed by a part-id byte per spec.md §3. Bit 5
// (0x20) distinguishes the precomputed Montgomery n' companion of P/Q from
// the prime itself, matching spec.md §3's "identified by bit 5 of the
// part-id" note. Exact numeric values are this implementation's choice
// (spec.md names the taxonomy but not the wire constants); see DESIGN.md.
const (
	PartRSA_P              byte = 0x01
	PartRSA_Q              byte = 0x02
	PartRSA_DP             byte = 0x03
	PartRSA_DQ             byte = 0x04
	PartRSA_QInv           byte = 0x05
	PartRSA_Modulus        byte = 0x06
	PartRSA_ModulusP1      byte = 0x07 // 2048-bit modulus, first half
	PartRSA_ModulusP2      byte = 0x08 // 2048-bit modulus, second half
	PartRSA_PublicExponent byte = 0x09

	partNPrimeBit byte = 0x20
	PartRSA_NPrimeP byte = PartRSA_P | partNPrimeBit
	PartRSA_NPrimeQ byte = PartRSA_Q | partNPrimeBit

	PartECPrivate byte = 0x10 // KEY_EC_PRIVATE
	PartECPublic  byte = 0x11 // KEY_EC_PUBLIC, uncompressed 04||X||Y

	PartSymmetric byte = 0xA0
)

// IsNPrimePart reports whether a part id addresses a precomputed n'
// companion rather than the prime itself.
func IsNPrimePart(part byte) bool { return part&partNPrimeBit != 0 }
