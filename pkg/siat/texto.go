package siat

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// quitaDiacriticos descompone (NFD), elimina marcas combinantes y recompone (NFC).
var quitaDiacriticos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizarTexto prepara un texto libre para los campos del SIAT: sin tildes
// ni diéresis, espacios colapsados y recortado. El WS rechaza descripciones con
// caracteres fuera de su juego permitido.
func NormalizarTexto(s string) string {
	out, _, err := transform.String(quitaDiacriticos, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}
