package models

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// Message is the fixed message returned alongside a processed record.
const Message = "Stub processed"

// Response is what the handler returns to its invoker.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Body is the decoded form of Response.Body.
type Body struct {
	Message string `json:"message"`
	Record  Record `json:"record"`
}

// NewResponse wraps a persisted record into a successful response.
func NewResponse(record Record) (Response, error) {
	b, err := json.Marshal(Body{
		Message: Message,
		Record:  record,
	})
	if err != nil {
		return Response{}, errors.Wrap(err, "encoding body")
	}
	return Response{
		StatusCode: http.StatusOK,
		Body:       string(b),
	}, nil
}

// Decode returns the decoded body of the response.
func (r Response) Decode() (Body, error) {
	var body Body
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		return Body{}, errors.Wrap(err, "decoding body")
	}
	return body, nil
}
