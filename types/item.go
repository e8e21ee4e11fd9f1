package types

// ItemKind discriminates the three catalog variants. The same record shape
// and persistence contract applies to all of them; only diagnoses carry
// synonyms.
type ItemKind string

const (
	ItemDiagnosis  ItemKind = "diagnosis"
	ItemSymptom    ItemKind = "symptom"
	ItemMedication ItemKind = "medication"
)

// Valid reports whether k is one of the known catalog kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemDiagnosis, ItemSymptom, ItemMedication:
		return true
	}
	return false
}

// Item is a catalog entry a user can be assigned to and later log
// occurrences against.
type Item struct {
	ID   int      `json:"id" db:"id"`
	Kind ItemKind `json:"kind"`
	Name string   `json:"name" db:"name"`

	// Synonyms holds alternate names for a diagnosis. A new item name must
	// not collide with any canonical name or any synonym of its kind.
	Synonyms []string `json:"synonyms,omitempty" db:"synonyms"`
}
