package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeChecksum(t *testing.T) {
	data := []byte("test data for checksum validation")
	checksum := ComputeChecksum(data)

	assert.Equal(t, checksum, ComputeChecksum(data))
	assert.True(t, ValidateChecksum(data, checksum))
	assert.False(t, ValidateChecksum(data, checksum+1))

	corrupted := append([]byte{}, data...)
	corrupted[0] ^= 0xFF
	assert.False(t, ValidateChecksum(corrupted, checksum))
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"simple", []byte("hello world")},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xFF}},
		{"large", make([]byte, 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeFrame(tt.data)
			assert.Len(t, frame, len(tt.data)+frameOverhead)

			payload, err := DecodeFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.data, payload)
		})
	}
}

func TestDecodeFrame_Corruption(t *testing.T) {
	frame := EncodeFrame([]byte("payload"))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"too short", func(b []byte) []byte { return b[:5] }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"flipped payload", func(b []byte) []byte { b[9] ^= 0xFF; return b }},
		{"flipped checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.mutate(append([]byte{}, frame...)))
			assert.ErrorIs(t, err, ErrCorruptFrame)
		})
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	data := make([]byte, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EncodeFrame(data)
	}
}
