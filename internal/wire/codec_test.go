package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder_AllFieldTypes(t *testing.T) {
	payload := NewEncoder().
		Uint8(0xAB).
		Uint16(0x1234).
		Uint32(0xDEADBEEF).
		Uint64(0x0123456789ABCDEF).
		String("hello").
		Raw([]byte{1, 2, 3}).
		Bytes()

	d := NewDecoder(payload)

	u8, err := d.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xAB), u8)

	u16, err := d.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), u16)

	u32, err := d.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := d.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789ABCDEF), u64)

	s, err := d.String()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	require.Equal(t, []byte{1, 2, 3}, d.Rest())
}

func TestDecoder_EmptyString(t *testing.T) {
	payload := NewEncoder().String("").Bytes()
	d := NewDecoder(payload)

	s, err := d.String()
	require.NoError(t, err)
	require.Equal(t, "", s)
}

func TestDecoder_TruncatedFixedWidth(t *testing.T) {
	for _, tc := range []struct {
		name string
		read func(d *Decoder) error
	}{
		{"uint8", func(d *Decoder) error { _, err := d.Uint8(); return err }},
		{"uint16", func(d *Decoder) error { _, err := d.Uint16(); return err }},
		{"uint32", func(d *Decoder) error { _, err := d.Uint32(); return err }},
		{"uint64", func(d *Decoder) error { _, err := d.Uint64(); return err }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(nil)
			require.Error(t, tc.read(d))
		})
	}
}

func TestDecoder_StringLengthPrefixExceedsBuffer(t *testing.T) {
	// Claims a 10-byte string but supplies none.
	payload := NewEncoder().Uint16(10).Bytes()
	d := NewDecoder(payload)

	_, err := d.String()
	require.Error(t, err)
}

func TestDecoder_RestOnEmptyTail(t *testing.T) {
	payload := NewEncoder().Uint8(1).Bytes()
	d := NewDecoder(payload)
	_, err := d.Uint8()
	require.NoError(t, err)

	require.Len(t, d.Rest(), 0)
}
