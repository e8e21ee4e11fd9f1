package types

import (
	"sort"
	"time"
)

// Symptom tracking divides the day into five fixed timespans; medication
// tracking uses four times of day. The label sets double as display order:
// rank is chronological, not lexicographic.
var (
	SymptomTimespans = []string{"12-8 AM", "8 AM-12 PM", "12-4 PM", "4-8 PM", "8 PM-12 AM"}
	MedicationTimes  = []string{"AM", "Midday", "PM", "Evening"}
)

// BucketRank returns the 1-based chronological position of bucket within its
// kind's vocabulary, or 0 if the label is unknown.
func BucketRank(kind ItemKind, bucket string) int {
	var labels []string
	switch kind {
	case ItemSymptom:
		labels = SymptomTimespans
	case ItemMedication:
		labels = MedicationTimes
	default:
		return 0
	}
	for i, label := range labels {
		if label == bucket {
			return i + 1
		}
	}
	return 0
}

// ValidBucket reports whether bucket is a known label for the given kind.
func ValidBucket(kind ItemKind, bucket string) bool {
	return BucketRank(kind, bucket) > 0
}

// TrackingRecord is one dated, time-bucketed occurrence cell: symptom
// severity or medication dose count logged by a user for an assigned item.
// At most one record exists per (user, item, date, bucket).
type TrackingRecord struct {
	ID       int      `json:"id"`
	UserID   int      `json:"user_id"`
	ItemID   int      `json:"item_id"`
	Kind     ItemKind `json:"kind"`
	ItemName string   `json:"item_name,omitempty"`

	// Date is the tracked calendar day, formatted YYYY-MM-DD.
	Date string `json:"date"`

	// Bucket is the timespan (symptoms) or time-of-day (medications) label.
	Bucket string `json:"bucket"`

	// Value is the severity (1-5) for symptoms or the dose count for
	// medications. Units live on the assignment, not here.
	Value float64 `json:"value"`

	// RecordedAt is when the cell was created or last edited.
	RecordedAt time.Time `json:"recorded_at"`
}

// SortTrackingRecords orders records by date ascending, then by bucket rank
// within each date. Unknown bucket labels sort last.
func SortTrackingRecords(records []TrackingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		ri := BucketRank(records[i].Kind, records[i].Bucket)
		rj := BucketRank(records[j].Kind, records[j].Bucket)
		if ri == 0 {
			return false
		}
		if rj == 0 {
			return true
		}
		return ri < rj
	})
}
