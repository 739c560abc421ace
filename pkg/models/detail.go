package models

// ObjectCreated is the detail of an S3 "Object Created" EventBridge event.
type ObjectCreated struct {
	Version         string       `json:"version,omitempty"`
	Bucket          BucketDetail `json:"bucket"`
	Object          ObjectDetail `json:"object"`
	RequestID       string       `json:"request-id,omitempty"`
	Requester       string       `json:"requester,omitempty"`
	SourceIPAddress string       `json:"source-ip-address,omitempty"`
	Reason          string       `json:"reason,omitempty"`
}

// BucketDetail names the bucket the object was created in.
type BucketDetail struct {
	Name *string `json:"name"`
}

// ObjectDetail describes the created object.
type ObjectDetail struct {
	Key       *string `json:"key"`
	Size      int64   `json:"size,omitempty"`
	ETag      string  `json:"etag,omitempty"`
	Sequencer string  `json:"sequencer,omitempty"`
}

// Input returns the handler input forwarded for this event: the bucket name
// and object key, each absent when the event doesn't carry it.
func (o ObjectCreated) Input() Input {
	return Input{
		Bucket: optional(o.Bucket.Name),
		Key:    optional(o.Object.Key),
	}
}

func optional(s *string) Optional {
	if s == nil {
		return None()
	}
	return Some(*s)
}
