package imu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelType(t *testing.T) {
	testCases := []struct {
		in      string
		out     channel
		wantErr bool
	}{
		{in: "le:s16/32>>0", out: channel{signed: true, bits: 16, storage: 32}},
		{in: "le:s12/16>>4", out: channel{signed: true, bits: 12, storage: 16, shift: 4}},
		{in: "le:u8/16>>0", out: channel{bits: 8, storage: 16}},
		{in: "be:s16/32>>0", wantErr: true},
		{in: "le:s16/24>>0", wantErr: true},
		{in: "bogus", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			ch, err := parseChannelType(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, ch)
		})
	}
}

func TestChannelDecode(t *testing.T) {
	// s16 stored in 32 bits, little endian.
	ch := channel{signed: true, bits: 16, storage: 32}
	assert.Equal(t, int64(-2), ch.decode([]byte{0xfe, 0xff, 0x00, 0x00}))
	assert.Equal(t, int64(0x1234), ch.decode([]byte{0x34, 0x12, 0x00, 0x00}))

	// s12 shifted into the upper bits of a 16-bit word.
	ch = channel{signed: true, bits: 12, storage: 16, shift: 4}
	assert.Equal(t, int64(-1), ch.decode([]byte{0xf0, 0xff}))

	// Unsigned channels never sign extend.
	ch = channel{bits: 8, storage: 16}
	assert.Equal(t, int64(0xff), ch.decode([]byte{0xff, 0x00}))
}
