package room

import "github.com/cory-johannsen/mimic/internal/game/dice"

// IDLength is the number of letters in a room code.
const IDLength = 8

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewID returns a random room code of IDLength uppercase letters.
//
// Precondition: src must be non-nil.
// Postcondition: ValidID(result) is true.
func NewID(src dice.Source) string {
	b := make([]byte, IDLength)
	for i := range b {
		b[i] = idAlphabet[src.Intn(len(idAlphabet))]
	}
	return string(b)
}

// ValidID reports whether id is exactly IDLength uppercase ASCII letters.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 'A' || id[i] > 'Z' {
			return false
		}
	}
	return true
}
