// Package auth implements the salted password scheme used by the account
// tables. An account's auth blob is 64 bytes: a 32-byte SHA-256 hash
// followed by the 32-byte salt it was computed with.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"
)

// AuthSize is the size of an account auth blob.
const AuthSize = 64

// Hash computes SHA-256(SHA-256(password) XOR salt). The salt must be 32
// bytes.
func Hash(password string, salt []byte) [sha256.Size]byte {
	digest := sha256.Sum256([]byte(password))
	for i := range digest {
		digest[i] ^= salt[i]
	}
	return sha256.Sum256(digest[:])
}

// MakeAuth assembles a 64-byte auth blob from a password and salt.
func MakeAuth(password string, salt []byte) []byte {
	digest := Hash(password, salt)
	auth := make([]byte, 0, AuthSize)
	auth = append(auth, digest[:]...)
	auth = append(auth, salt...)
	return auth
}

// TestPassword checks a password against a 64-byte auth blob in constant
// time. An all-zero blob means the authentication data was never set and
// always fails.
func TestPassword(authBlob []byte, password string) bool {
	if len(authBlob) != AuthSize {
		return false
	}

	var set byte
	for _, b := range authBlob {
		set |= b
	}
	if set == 0 {
		return false
	}

	digest := Hash(password, authBlob[32:])
	return subtle.ConstantTimeCompare(digest[:], authBlob[:32]) == 1
}

// NIST SHA-256 test vectors, hex input to hex digest.
var sha256Vectors = [][2]string{
	{
		"",
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	},
	{
		"5738c929c4f4ccb6",
		"963bb88f27f512777aab6c8b1a02c70ec0ad651d428f870036e1917120fb48bf",
	},
	{
		"1b503fb9a73b16ada3fcf1042623ae7610",
		"d5c30315f72ed05fe519a1bf75ab5fd0ffec5ac1acb0daf66b6b769598594509",
	},
	{
		"09fc1accc230a205e4a208e64a8f204291f581a12756392da4b8c0cf5ef02b95",
		"4f44c1c7fbebb6f9601829f3897bfd650c56fa07844be76489076356ac1886a4",
	},
	{
		"03b264be51e4b941864f9b70b4c958f5355aac294b4b87cb037f11f85f07eb57b3f0b89550",
		"d1f8bd684001ac5a4b67bbf79f87de524d2da99ac014dec3e4187728f4557471",
	},
	{
		"d1be3f13febafefc14414d9fb7f693db16dc1ae270c5b647d80da8583587c1ad8cb8cb01824324411ca5ace3ca22e179a4ff4986f3f21190f3d7f3",
		"02804978eba6e1de65afdbc6a6091ed6b1ecee51e8bff40646a251de6678b7ef",
	},
}

// SelfTest runs the SHA-256 primitive against fixed NIST vectors. It is
// called once at startup and a failure is fatal.
func SelfTest() error {
	for i, vec := range sha256Vectors {
		input, err := hex.DecodeString(vec[0])
		if err != nil {
			return errors.Wrapf(err, "invalid test vector %d", i)
		}
		expected, err := hex.DecodeString(vec[1])
		if err != nil {
			return errors.Wrapf(err, "invalid test vector %d", i)
		}

		digest := sha256.Sum256(input)
		if subtle.ConstantTimeCompare(digest[:], expected) != 1 {
			return errors.Errorf("test vector %d failed", i)
		}
	}
	return nil
}
