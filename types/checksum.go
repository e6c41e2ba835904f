package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Checksum identifies an oracle script.
// It is the SHA-256 hash of the script's original (uninstrumented) bytecode.
type Checksum [ChecksumLen]byte

// ChecksumLen is the length of a checksum in bytes.
const ChecksumLen = 32

// NewChecksumFromCode hashes the given script bytecode.
func NewChecksumFromCode(code []byte) Checksum {
	return sha256.Sum256(code)
}

// NewChecksum creates a new Checksum from a byte slice.
// Returns an error if the slice length is not ChecksumLen.
func NewChecksum(b []byte) (Checksum, error) {
	if len(b) != ChecksumLen {
		return Checksum{}, errors.New("got wrong number of bytes for checksum")
	}
	var cs Checksum
	copy(cs[:], b)
	return cs, nil
}

// ParseChecksum decodes a hex encoded checksum.
func ParseChecksum(input string) (Checksum, error) {
	data, err := hex.DecodeString(input)
	if err != nil {
		return Checksum{}, fmt.Errorf("invalid checksum hex: %w", err)
	}
	return NewChecksum(data)
}

func (cs Checksum) String() string {
	return hex.EncodeToString(cs[:])
}

// Bytes returns the checksum as a byte slice.
func (cs Checksum) Bytes() []byte {
	return cs[:]
}

// MarshalJSON implements the json.Marshaler interface for Checksum.
// It converts the checksum to a hex-encoded string.
func (cs Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(cs[:]))
}

// UnmarshalJSON implements the json.Unmarshaler interface for Checksum.
// It parses a hex-encoded string into a checksum.
func (cs *Checksum) UnmarshalJSON(input []byte) error {
	var hexString string
	if err := json.Unmarshal(input, &hexString); err != nil {
		return err
	}
	parsed, err := ParseChecksum(hexString)
	if err != nil {
		return err
	}
	*cs = parsed
	return nil
}
