package document

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document types with dedicated chunking strategies and agents.
const (
	TypeCreditClaim      = "Habilitação de Crédito"
	TypeBankruptcy       = "Processo Falimentar"
	TypeJudicialRecovery = "Recuperação Judicial"
	TypeGeneric          = "documento"
)

// NormalizeType folds case, accents and surrounding space so that
// "habilitacao de credito" and "Habilitação de Crédito" compare equal.
func NormalizeType(docType string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, docType)
	if err != nil {
		out = docType
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// SameType reports whether a and b name the same document type.
func SameType(a, b string) bool {
	return NormalizeType(a) == NormalizeType(b)
}
