package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToxIDRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		publicKey [32]byte
		nospam    [4]byte
	}{
		{name: "zero values"},
		{
			name:      "sequential key",
			publicKey: [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
			nospam:    [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewToxID(tt.publicKey, tt.nospam)
			s := id.String()
			assert.Len(t, s, ToxIDSize*2)
			assert.Equal(t, strings.ToUpper(s), s)

			parsed, err := ParseToxID(strings.ToLower(s))
			require.NoError(t, err)
			assert.Equal(t, *id, *parsed)
		})
	}
}

func TestParseToxIDRejectsBadInput(t *testing.T) {
	_, err := ParseToxID("abcd")
	assert.ErrorIs(t, err, ErrInvalidToxIDLength)

	id := NewToxID([32]byte{9}, [4]byte{1, 2, 3, 4})
	s := []byte(id.String())
	// flip the last checksum nibble
	if s[len(s)-1] == '0' {
		s[len(s)-1] = '1'
	} else {
		s[len(s)-1] = '0'
	}
	_, err = ParseToxID(string(s))
	assert.ErrorIs(t, err, ErrInvalidChecksum)
}

func TestKeyPairFromSecretKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := FromSecretKey(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, restored.Public)

	_, err = FromSecretKey([32]byte{})
	assert.ErrorIs(t, err, ErrZeroKey)
}

func TestPublicKeyStringParse(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	key, err := ParsePublicKey(PublicKeyString(kp.Public))
	require.NoError(t, err)
	assert.Equal(t, kp.Public, key)

	_, err = ParsePublicKey("00")
	assert.Error(t, err)
}

func TestKeyPairWipe(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	pub := kp.Public

	kp.Wipe()
	assert.Equal(t, [32]byte{}, kp.Private)
	assert.Equal(t, pub, kp.Public)

	var nilPair *KeyPair
	assert.NotPanics(t, nilPair.Wipe)
}
