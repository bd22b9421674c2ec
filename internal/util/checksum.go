package util

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Frame layout for data files: [magic (4)][payload length (4, BE)][payload][crc32 of payload (4, BE)]

var (
	// crc32Table is precomputed for better performance
	crc32Table = crc32.MakeTable(crc32.IEEE)

	frameMagic = [4]byte{'T', 'C', 'F', '1'}

	// ErrCorruptFrame is returned when a frame fails validation
	ErrCorruptFrame = errors.New("corrupt data frame")
)

const frameOverhead = 12

// ComputeChecksum computes a CRC32 checksum for the given data
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// ValidateChecksum validates data against an expected checksum
func ValidateChecksum(data []byte, expected uint32) bool {
	return ComputeChecksum(data) == expected
}

// EncodeFrame wraps payload with the magic header, its length and a trailing checksum
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, frameOverhead+len(payload))
	copy(out, frameMagic[:])
	binary.BigEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[8:], payload)
	binary.BigEndian.PutUint32(out[8+len(payload):], ComputeChecksum(payload))
	return out
}

// DecodeFrame validates a frame produced by EncodeFrame and returns its payload.
// Truncated writes and bit flips surface as ErrCorruptFrame.
func DecodeFrame(data []byte) ([]byte, error) {
	if len(data) < frameOverhead {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the frame header", ErrCorruptFrame, len(data))
	}
	if [4]byte(data[:4]) != frameMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptFrame)
	}
	n := binary.BigEndian.Uint32(data[4:8])
	if uint64(len(data)) != uint64(n)+frameOverhead {
		return nil, fmt.Errorf("%w: length %d does not match frame size %d", ErrCorruptFrame, n, len(data))
	}
	payload := data[8 : 8+n]
	if !ValidateChecksum(payload, binary.BigEndian.Uint32(data[8+n:])) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptFrame)
	}
	return payload, nil
}
