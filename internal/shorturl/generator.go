// generator.go -- Random short ids.
package shorturl

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet drops look-alike characters (0/O, 1/l/I).
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// IDLength is the length of every generated short id.
const IDLength = 6

var alphabetLen = big.NewInt(int64(len(Alphabet)))

// NewID returns a uniformly random IDLength-character id drawn from Alphabet.
func NewID() (string, error) {
	b := make([]byte, IDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generating short id: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}
