package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

// ToxIDSize is the binary size of a Tox address: key, nospam and checksum.
const ToxIDSize = 38

var (
	// ErrInvalidToxIDLength is returned for addresses that are not 76 hex characters.
	ErrInvalidToxIDLength = errors.New("invalid Tox ID length")

	// ErrInvalidChecksum is returned when the address checksum does not match.
	ErrInvalidChecksum = errors.New("invalid checksum")
)

// ToxID is the shareable address of a node: its public key, a nospam value that
// can be rotated to shed unwanted friend requests, and a two byte checksum.
type ToxID struct {
	PublicKey [32]byte
	Nospam    [4]byte
	Checksum  [2]byte
}

// NewToxID builds an address from a public key and nospam value.
func NewToxID(publicKey [32]byte, nospam [4]byte) *ToxID {
	id := &ToxID{
		PublicKey: publicKey,
		Nospam:    nospam,
	}
	id.Checksum = id.computeChecksum()
	return id
}

// ParseToxID parses the hexadecimal form of an address and verifies its checksum.
// Surrounding whitespace and letter case are ignored.
func ParseToxID(s string) (*ToxID, error) {
	s = strings.TrimSpace(s)
	if len(s) != ToxIDSize*2 {
		return nil, ErrInvalidToxIDLength
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	id := &ToxID{}
	copy(id.PublicKey[:], data[0:32])
	copy(id.Nospam[:], data[32:36])
	copy(id.Checksum[:], data[36:38])

	if id.Checksum != id.computeChecksum() {
		return nil, ErrInvalidChecksum
	}
	return id, nil
}

// String returns the upper-case hexadecimal form shown to users.
func (id *ToxID) String() string {
	data := make([]byte, ToxIDSize)
	copy(data[0:32], id.PublicKey[:])
	copy(data[32:36], id.Nospam[:])
	copy(data[36:38], id.Checksum[:])
	return strings.ToUpper(hex.EncodeToString(data))
}

func (id *ToxID) computeChecksum() [2]byte {
	var checksum [2]byte
	for i := 0; i < 32; i++ {
		checksum[i%2] ^= id.PublicKey[i]
	}
	for i := 0; i < 4; i++ {
		checksum[i%2] ^= id.Nospam[i]
	}
	return checksum
}

// GenerateNospam returns a random nospam value.
func GenerateNospam() [4]byte {
	var nospam [4]byte
	if _, err := rand.Read(nospam[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return nospam
}

// PublicKeyString renders a public key as upper-case hex.
func PublicKeyString(key [32]byte) string {
	return strings.ToUpper(hex.EncodeToString(key[:]))
}

// ParsePublicKey parses a 64 character hex public key.
func ParsePublicKey(s string) ([32]byte, error) {
	var key [32]byte
	s = strings.TrimSpace(s)
	if len(s) != 64 {
		return key, errors.New("invalid public key length")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return key, err
	}
	copy(key[:], data)
	return key, nil
}
