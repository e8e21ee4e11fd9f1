package types

// Assignment is the join record linking a user to a catalog item, carrying
// the kind-specific metadata the user entered when they enrolled.
//
// At most one assignment exists per (user, item) pair. Tracking records
// reference the pair, so repointing ItemID reattributes them transitively.
type Assignment struct {
	UserID   int      `json:"user_id" db:"user_id"`
	ItemID   int      `json:"item_id" db:"item_id"`
	Kind     ItemKind `json:"kind"`
	ItemName string   `json:"item_name,omitempty"`

	// Keywords is diagnosis metadata: free-form search terms. Updates are
	// additive; new keywords are appended to the stored set.
	Keywords []string `json:"keywords,omitempty"`

	// DosageNum, DosageUnit and TimesOfDay are medication metadata.
	DosageNum  float64  `json:"dosage_num,omitempty"`
	DosageUnit string   `json:"dosage_unit,omitempty"`
	TimesOfDay []string `json:"time_of_day,omitempty"`
}
