package room

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// CloseHintDistance is the largest edit distance between a guess and the
// symbol's name that still earns a hint.
const CloseHintDistance = 2

const (
	HintNamed = "That's the word! Now send the emoji itself."
	HintClose = "So close! Check your spelling."
)

// NameHinter produces hints for wrong guesses that spell out, or nearly spell
// out, the active symbol's catalog name.
type NameHinter struct {
	catalog *Catalog
}

// NewNameHinter returns a hinter backed by catalog.
//
// Precondition: catalog must be non-nil.
func NewNameHinter(catalog *Catalog) *NameHinter {
	return &NameHinter{catalog: catalog}
}

// Hint returns a hint for guess against the active emoji, or "" when the
// guess is not close.
func (h *NameHinter) Hint(guess, emoji string) string {
	sym, ok := h.catalog.Lookup(emoji)
	if !ok || sym.Name == "" {
		return ""
	}
	g := strings.ToLower(strings.TrimSpace(guess))
	name := strings.ToLower(sym.Name)
	if g == name {
		return HintNamed
	}
	if len([]rune(g)) <= CloseHintDistance {
		return ""
	}
	if levenshtein.ComputeDistance(g, name) <= CloseHintDistance {
		return HintClose
	}
	return ""
}
