package models_test

import (
	"encoding/json"
	"testing"

	"github.com/trussle/expense/pkg/models"
)

func TestObjectCreatedInput(t *testing.T) {
	t.Parallel()

	t.Run("full detail", func(t *testing.T) {
		payload := `{
			"version": "0",
			"bucket": {"name": "my-bucket"},
			"object": {"key": "receipts/123.pdf", "size": 5, "etag": "abc", "sequencer": "01"},
			"request-id": "r",
			"requester": "123456789012",
			"reason": "PutObject"
		}`

		var detail models.ObjectCreated
		if err := json.Unmarshal([]byte(payload), &detail); err != nil {
			t.Fatal(err)
		}

		input := detail.Input()
		if expected, actual := "my-bucket", input.Bucket.Or(""); expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "receipts/123.pdf", input.Key.Or(""); expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		var detail models.ObjectCreated
		if err := json.Unmarshal([]byte(`{"bucket":{}}`), &detail); err != nil {
			t.Fatal(err)
		}

		input := detail.Input()
		if expected, actual := false, input.Bucket.Present(); expected != actual {
			t.Errorf("expected: %t, actual: %t", expected, actual)
		}
		if expected, actual := false, input.Key.Present(); expected != actual {
			t.Errorf("expected: %t, actual: %t", expected, actual)
		}
	})
}
