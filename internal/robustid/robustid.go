// Package robustid generates the 18-character robust connection ID
// shared by every physical connection of one logical connection.
package robustid

import (
	"crypto/rand"
	"math/big"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	length   = 18
)

// New returns a fresh 18-character [0-9A-Za-z] random identifier.
func New() string {
	id := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the OS entropy source is broken;
			// nothing downstream can recover from that.
			panic("robustid: crypto/rand unavailable: " + err.Error())
		}
		id[i] = alphabet[n.Int64()]
	}
	return string(id)
}
