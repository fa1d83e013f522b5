package market

import (
	"encoding/hex"
	"math"
	"strings"
	"unicode/utf8"
)

// OctasPerUnit is the number of octas (the ledger's minor currency
// unit) in one display unit.
const OctasPerUnit = 100_000_000

// ToOctas converts a display-unit amount to octas. Amounts are rounded
// to the nearest octa so that values with two decimal places survive
// the float multiply exactly.
func ToOctas(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * OctasPerUnit))
}

// FromOctas converts octas to display units.
func FromOctas(octas uint64) float64 {
	return float64(octas) / OctasPerUnit
}

// DecodeHexText decodes a 0x-prefixed hex byte string into UTF-8 text.
// The chain returns names, descriptions and URIs in this form. Garbage
// in yields the empty string out: list rendering treats "" as unknown
// instead of failing the whole page.
func DecodeHexText(s string) string {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ""
	}
	if !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

// EncodeText returns the UTF-8 bytes of s for outbound call arguments.
func EncodeText(s string) []byte {
	return []byte(s)
}
