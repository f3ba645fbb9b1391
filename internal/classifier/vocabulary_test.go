package classifier

import "testing"

func TestVocabularyValidate(t *testing.T) {
	tests := []struct {
		name        string
		vocab       *Vocabulary
		expectError bool
	}{
		{"default", DefaultVocabulary(), false},
		{"nil", nil, true},
		{"no office markers", &Vocabulary{ReceivedFee: []string{"x"}, DeclarationAdvance: []string{"y"}}, true},
		{"blank marker", &Vocabulary{ReceivedFee: []string{" "}, DeclarationAdvance: []string{"y"}, Office: []string{"z"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vocab.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestVocabularyMarkers(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		text        string
		receivedFee bool
		advance     bool
		office      bool
	}{
		{"Honoraires reçus mars", true, false, false},
		{"HONORAIRES RECUS", true, false, false},
		{"Received fee - Smith", true, false, false},
		{"Avance sur déclaration IR", false, true, false},
		{"declaration advance", false, true, false},
		{"[OFFICE] Supplies", false, false, true},
		{"loyer [Bureau]", false, false, true},
		{"office supplies", false, false, false},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := vocab.IsReceivedFee(tt.text); got != tt.receivedFee {
				t.Errorf("IsReceivedFee(%q) = %v, want %v", tt.text, got, tt.receivedFee)
			}
			if got := vocab.IsDeclarationAdvance(tt.text); got != tt.advance {
				t.Errorf("IsDeclarationAdvance(%q) = %v, want %v", tt.text, got, tt.advance)
			}
			if got := vocab.IsOfficeTagged(tt.text); got != tt.office {
				t.Errorf("IsOfficeTagged(%q) = %v, want %v", tt.text, got, tt.office)
			}
		})
	}
}

func TestStripOfficeMarkers(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		text     string
		expected string
	}{
		{"[OFFICE] Supplies", "Supplies"},
		{"loyer [Bureau]", "loyer"},
		{"[office]Fournitures [CGM] bureau", "Fournitures bureau"},
		{"[OFFICE] Vol İstanbul", "Vol İstanbul"},
		{"Taxi İzmir [bureau] retour", "Taxi İzmir retour"},
		{"[BUREAU]Éco-participation", "Éco-participation"},
		{"Timbres", "Timbres"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := vocab.StripOfficeMarkers(tt.text); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := DefaultVocabulary()
	clone := original.Clone()
	clone.Office[0] = "[changed]"

	if original.Office[0] == "[changed]" {
		t.Error("expected clone to be independent of the original")
	}
}
