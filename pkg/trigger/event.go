package trigger

import (
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

// NewObjectCreated builds the event EventBridge emits when key is created in
// bucket. It's used to feed the runner without a real upload.
func NewObjectCreated(bucket, key string, size int64, at time.Time) (events.CloudWatchEvent, error) {
	detail, err := json.Marshal(models.ObjectCreated{
		Version: "0",
		Bucket: models.BucketDetail{
			Name: &bucket,
		},
		Object: models.ObjectDetail{
			Key:  &key,
			Size: size,
		},
		Reason: "PutObject",
	})
	if err != nil {
		return events.CloudWatchEvent{}, errors.Wrap(err, "encoding detail")
	}

	return events.CloudWatchEvent{
		Version:    "0",
		ID:         uuid.New().String(),
		DetailType: DetailTypeCreated,
		Source:     SourceS3,
		Time:       at.UTC(),
		Resources:  []string{"arn:aws:s3:::" + bucket},
		Detail:     detail,
	}, nil
}

// Encode is the inverse of Decode.
func Encode(event events.CloudWatchEvent) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "encoding event")
	}
	return b, nil
}
