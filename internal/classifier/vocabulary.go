// Package classifier selects the fee and expense records that make up a statement.
//
// Classification is driven by a small, enumerated marker vocabulary:
//   - received-fee markers identify fee lines that count as income
//   - declaration-advance markers identify entries that are deliberately left
//     out of both totals
//   - office markers tag an expense as belonging to the office scope; an
//     expense without one belongs to the client scope
//
// All matching is a case-insensitive substring test. Both classifiers are pure
// functions of their input and never fail on malformed records.
package classifier

import (
	"fmt"
	"strings"
)

// Vocabulary holds the markers recognised in fee labels and expense descriptions
type Vocabulary struct {
	// ReceivedFee markers identify a fee actually received from a client
	ReceivedFee []string `json:"received_fee" mapstructure:"received_fee"`

	// DeclarationAdvance markers identify advances that belong to neither stream
	DeclarationAdvance []string `json:"declaration_advance" mapstructure:"declaration_advance"`

	// Office markers tag an expense description as office scope
	Office []string `json:"office" mapstructure:"office"`
}

// DefaultVocabulary returns the markers used by the office's ledgers
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		ReceivedFee: []string{
			"honoraires reçus",
			"honoraire reçu",
			"honoraires recus",
			"honoraire recu",
			"received fee",
		},
		DeclarationAdvance: []string{
			"avance sur déclaration",
			"avance sur declaration",
			"avance déclaration",
			"avance declaration",
			"declaration advance",
		},
		Office: []string{
			"[office]",
			"[bureau]",
			"[cgm]",
		},
	}
}

// Validate checks that every marker list is usable
func (v *Vocabulary) Validate() error {
	if v == nil {
		return fmt.Errorf("vocabulary cannot be nil")
	}

	lists := []struct {
		name    string
		markers []string
	}{
		{"received_fee", v.ReceivedFee},
		{"declaration_advance", v.DeclarationAdvance},
		{"office", v.Office},
	}

	for _, list := range lists {
		if len(list.markers) == 0 {
			return fmt.Errorf("%s markers cannot be empty", list.name)
		}
		for i, marker := range list.markers {
			if strings.TrimSpace(marker) == "" {
				return fmt.Errorf("%s marker %d is blank", list.name, i)
			}
		}
	}

	return nil
}

// Clone creates a deep copy of the vocabulary
func (v *Vocabulary) Clone() *Vocabulary {
	if v == nil {
		return nil
	}
	return &Vocabulary{
		ReceivedFee:        append([]string(nil), v.ReceivedFee...),
		DeclarationAdvance: append([]string(nil), v.DeclarationAdvance...),
		Office:             append([]string(nil), v.Office...),
	}
}

// IsReceivedFee reports whether text carries a received-fee marker
func (v *Vocabulary) IsReceivedFee(text string) bool {
	return containsAny(text, v.ReceivedFee)
}

// IsDeclarationAdvance reports whether text carries a declaration-advance marker
func (v *Vocabulary) IsDeclarationAdvance(text string) bool {
	return containsAny(text, v.DeclarationAdvance)
}

// IsOfficeTagged reports whether an expense description carries an office marker
func (v *Vocabulary) IsOfficeTagged(text string) bool {
	return containsAny(text, v.Office)
}

// StripOfficeMarkers removes office markers from a description for display.
// Markers match case-insensitively, rune by rune.
func (v *Vocabulary) StripOfficeMarkers(text string) string {
	markers := make([][]rune, 0, len(v.Office))
	for _, marker := range v.Office {
		if m := strings.TrimSpace(marker); m != "" {
			markers = append(markers, []rune(m))
		}
	}

	runes := []rune(text)
	kept := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); {
		if n := matchMarker(runes[i:], markers); n > 0 {
			i += n
			continue
		}
		kept = append(kept, runes[i])
		i++
	}

	return strings.Join(strings.Fields(string(kept)), " ")
}

// matchMarker returns the rune length of the first marker text starts with, or 0
func matchMarker(text []rune, markers [][]rune) int {
	for _, m := range markers {
		if len(m) <= len(text) && strings.EqualFold(string(text[:len(m)]), string(m)) {
			return len(m)
		}
	}
	return 0
}

func containsAny(text string, markers []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, marker := range markers {
		m := strings.ToLower(strings.TrimSpace(marker))
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
