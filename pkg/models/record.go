package models

import (
	"time"
)

const (
	// KeyAttribute is the partition key attribute of the table.
	KeyAttribute = "pk"

	// KeyPrefix is prepended to the object key to form the partition key.
	KeyPrefix = "receipt#"

	// Unknown is substituted for any absent input field.
	Unknown = "unknown"

	// Notes is the literal notes value written on every record.
	Notes = "Replace with real OCR/PII/fraud logic"

	// TimeLayout is the ISO-8601 layout of ProcessedAt, always in UTC.
	TimeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Status describes the processing state of a record.
type Status string

// StatusStubProcessed is the only status this system ever writes.
const StatusStubProcessed Status = "STUB_PROCESSED"

func (s Status) String() string {
	return string(s)
}

// Record is the single row persisted for each processed ingestion event.
type Record struct {
	PK          string `json:"pk" dynamodbav:"pk"`
	Bucket      string `json:"bucket" dynamodbav:"bucket"`
	ObjectKey   string `json:"objectKey" dynamodbav:"objectKey"`
	Status      Status `json:"status" dynamodbav:"status"`
	ProcessedAt string `json:"processedAt" dynamodbav:"processedAt"`
	Notes       string `json:"notes" dynamodbav:"notes"`
}

// NewRecord builds the record for an input received at the given time.
// Absent fields are replaced by Unknown independently of each other.
func NewRecord(input Input, at time.Time) Record {
	key := input.Key.Or(Unknown)
	return Record{
		PK:          PartitionKey(key),
		Bucket:      input.Bucket.Or(Unknown),
		ObjectKey:   key,
		Status:      StatusStubProcessed,
		ProcessedAt: at.UTC().Format(TimeLayout),
		Notes:       Notes,
	}
}

// PartitionKey returns the partition key for an object key.
func PartitionKey(objectKey string) string {
	return KeyPrefix + objectKey
}
