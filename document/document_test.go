package document

import "testing"

func TestFingerprintIsStable(t *testing.T) {
	a := New("Habilitação de crédito")
	b := New("Habilitação de crédito")
	if a.Fingerprint != b.Fingerprint || len(a.Fingerprint) != 64 {
		t.Fatalf("unexpected fingerprints %q %q", a.Fingerprint, b.Fingerprint)
	}
	if New("outro texto").Fingerprint == a.Fingerprint {
		t.Fatalf("different texts must not share a fingerprint")
	}
	if a.ID() != "doc_"+a.Fingerprint[:12] {
		t.Fatalf("unexpected id %s", a.ID())
	}
}

func TestWithMetadataCopies(t *testing.T) {
	base := New("x").WithMetadata("source", "upload")
	derived := base.WithMetadata("source", "cli")
	if base.Metadata["source"] != "upload" || derived.Metadata["source"] != "cli" {
		t.Fatalf("metadata must not be shared: %v %v", base.Metadata, derived.Metadata)
	}
}

func TestIsEmpty(t *testing.T) {
	if !New(" \n\t").IsEmpty() || New("a").IsEmpty() {
		t.Fatalf("unexpected IsEmpty")
	}
}

func TestNormalizeType(t *testing.T) {
	if NormalizeType("  Habilitação  de Crédito ") != "habilitacao de credito" {
		t.Fatalf("unexpected normalization %q", NormalizeType("  Habilitação  de Crédito "))
	}
	if !SameType("RECUPERAÇÃO JUDICIAL", TypeJudicialRecovery) {
		t.Fatalf("expected types to match")
	}
	if SameType(TypeBankruptcy, TypeCreditClaim) {
		t.Fatalf("different types must not match")
	}
}
