package trigger

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

// Values of an S3 object creation event on EventBridge.
const (
	SourceS3          = "aws.s3"
	DetailTypeCreated = "Object Created"
	InputPath         = "$.detail"
)

// Pattern is an EventBridge event pattern selecting object creation events.
type Pattern struct {
	Source     []string      `json:"source"`
	DetailType []string      `json:"detail-type"`
	Detail     DetailPattern `json:"detail"`
}

// DetailPattern restricts the event detail.
type DetailPattern struct {
	Bucket BucketPattern `json:"bucket"`
}

// BucketPattern restricts the bucket of the event.
type BucketPattern struct {
	Name []string `json:"name,omitempty"`
}

// ObjectCreated returns the pattern for objects created in bucket.
func ObjectCreated(bucket string) Pattern {
	return Pattern{
		Source:     []string{SourceS3},
		DetailType: []string{DetailTypeCreated},
		Detail: DetailPattern{
			Bucket: BucketPattern{
				Name: []string{bucket},
			},
		},
	}
}

// JSON encodes the pattern as EventBridge expects it.
func (p Pattern) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "encoding pattern")
	}
	return string(b), nil
}

// Match reports whether the event is selected by the pattern.
func (p Pattern) Match(event events.CloudWatchEvent) bool {
	if !contains(p.Source, event.Source) || !contains(p.DetailType, event.DetailType) {
		return false
	}
	if len(p.Detail.Bucket.Name) == 0 {
		return true
	}

	var detail models.ObjectCreated
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return false
	}
	if detail.Bucket.Name == nil {
		return false
	}
	return contains(p.Detail.Bucket.Name, *detail.Bucket.Name)
}

// Input returns what an execution starts with for the event, the event's
// detail.
func Input(event events.CloudWatchEvent) json.RawMessage {
	return event.Detail
}

// Decode parses an EventBridge event.
func Decode(b []byte) (events.CloudWatchEvent, error) {
	var event events.CloudWatchEvent
	if err := json.Unmarshal(b, &event); err != nil {
		return event, errors.Wrap(err, "decoding event")
	}
	return event, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
