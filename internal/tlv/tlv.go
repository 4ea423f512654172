// Package tlv implements the single BER-TLV walk the card processor needs:
// one-byte length and the 0x81-prefixed long form, nothing else. Multi-byte
// long form (0x82, 0x83, ...) is rejected, matching source behavior (spec.md
// §9 re-architecture guidance).
package tlv

import "fmt"

// Entry is one tag/value pair produced by Walk.
type Entry struct {
	Tag   byte
	Value []byte
}

// Walk iterates the TLV entries in data, calling fn for each. It stops and
// returns an error on malformed length encoding or a truncated value.
func Walk(data []byte, fn func(Entry) error) error {
	i := 0
	for i < len(data) {
		tag := data[i]
		i++
		if i >= len(data) {
			return fmt.Errorf("tlv: truncated length for tag 0x%02X", tag)
		}
		length, consumed, err := readLength(data[i:])
		if err != nil {
			return err
		}
		i += consumed
		if i+length > len(data) {
			return fmt.Errorf("tlv: truncated value for tag 0x%02X", tag)
		}
		if err := fn(Entry{Tag: tag, Value: data[i : i+length]}); err != nil {
			return err
		}
		i += length
	}
	return nil
}

// readLength decodes either a one-byte length (0x00-0x7F, top bit clear) or
// the 0x81 LL long form. Any other long-form prefix is rejected.
func readLength(data []byte) (length, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("tlv: missing length byte")
	}
	b := data[0]
	if b&0x80 == 0 {
		return int(b), 1, nil
	}
	if b != 0x81 {
		return 0, 0, fmt.Errorf("tlv: unsupported long-form length 0x%02X", b)
	}
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("tlv: truncated 0x81 length")
	}
	return int(data[1]), 2, nil
}

// Find returns the value of the first entry with the given tag, walking only
// the top level of data.
func Find(data []byte, tag byte) ([]byte, bool) {
	var found []byte
	var ok bool
	_ = Walk(data, func(e Entry) error {
		if !ok && e.Tag == tag {
			found, ok = e.Value, true
		}
		return nil
	})
	return found, ok
}

// AppendTLV appends a tag/value pair to dst using the shortest supported
// length form (short form for len<0x80, else 0x81 LL).
func AppendTLV(dst []byte, tag byte, value []byte) []byte {
	dst = append(dst, tag)
	if len(value) < 0x80 {
		dst = append(dst, byte(len(value)))
	} else {
		dst = append(dst, 0x81, byte(len(value)))
	}
	return append(dst, value...)
}
