package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/flaretrack/apiserver/internal/storage"
	"github.com/flaretrack/apiserver/types"
	"github.com/google/uuid"
)

const exportContentType = "text/csv"

var exportHeader = []string{"kind", "item", "date", "bucket", "value", "recorded_at"}

// ExportService renders a user's full tracking history as a CSV archive and
// stores it in object storage for download or sharing with a clinician.
type ExportService struct {
	users   UserRepository
	records TrackingRepository
	storage *storage.Storage
}

func NewExportService(users UserRepository, records TrackingRepository, store *storage.Storage) *ExportService {
	return &ExportService{users: users, records: records, storage: store}
}

// Enabled reports whether an object-storage backend is configured.
func (s *ExportService) Enabled() bool {
	return s != nil && s.storage != nil
}

// Export writes the user's symptom and medication history to the configured
// bucket and returns the object key.
func (s *ExportService) Export(ctx context.Context, userID int) (string, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return "", err
	}

	symptoms, err := s.records.ListForUser(ctx, types.ItemSymptom, userID)
	if err != nil {
		return "", err
	}
	medications, err := s.records.ListForUser(ctx, types.ItemMedication, userID)
	if err != nil {
		return "", err
	}

	records := append(symptoms, medications...)
	types.SortTrackingRecords(records)

	data, err := renderCSV(records)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/user-%d/%s-%s.csv", userID, time.Now().Format("2006-01-02"), uuid.NewString())
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return "", err
	}
	return key, nil
}

func renderCSV(records []types.TrackingRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := []string{
			string(rec.Kind),
			rec.ItemName,
			rec.Date,
			rec.Bucket,
			strconv.FormatFloat(rec.Value, 'f', -1, 64),
			rec.RecordedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
