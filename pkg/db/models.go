package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/japaniel/contractsort/pkg/metadata"
)

// RecordRow is one row of the records table. The summary columns duplicate
// fields of the JSON payload so the table can be inspected with plain SQL.
type RecordRow struct {
	TrackingID        string
	SourceName        string
	DocumentType      string
	RetentionCategory string
	Status            string
	ExpirationDate    sql.NullString
	Payload           string
	UpdatedAt         time.Time
}

func rowFromRecord(rec metadata.Record, now time.Time) (RecordRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return RecordRow{}, err
	}
	row := RecordRow{
		TrackingID:        rec.TrackingID,
		SourceName:        rec.SourceName,
		DocumentType:      string(rec.DocumentType),
		RetentionCategory: string(rec.Category()),
		Status:            string(rec.Status),
		Payload:           string(payload),
		UpdatedAt:         now,
	}
	if exp, ok := rec.Expiration(); ok {
		row.ExpirationDate = sql.NullString{String: exp.String(), Valid: true}
	}
	return row, nil
}

func (r RecordRow) record() (metadata.Record, error) {
	var rec metadata.Record
	err := json.Unmarshal([]byte(r.Payload), &rec)
	return rec, err
}
