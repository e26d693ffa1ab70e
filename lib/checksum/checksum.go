package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

var ErrChecksumNotMatching = errors.New("given checksum does not match calculated checksum")

// Calculate returns the first four bytes of the sha256 digest of data.
func Calculate(data []byte) uint32 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint32(sum[:4])
}

func Verify(data []byte, expected uint32) error {
	if Calculate(data) != expected {
		return ErrChecksumNotMatching
	}

	return nil
}
