package registry

import (
	"crypto/rand"
	"math/big"
)

// The join code doubles as the room's access credential, so both
// identifiers come from crypto/rand rather than a seedable PRNG.
const (
	roomIDAlphabet   = "abcdefghijklmnopqrstuvwxyz"
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
