package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"testing/quick"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-kit/kit/log"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	metricsMocks "github.com/trussle/expense/pkg/metrics/mocks"
	"github.com/trussle/expense/pkg/models"
	"github.com/trussle/expense/pkg/store"
	storeMocks "github.com/trussle/expense/pkg/store/mocks"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestHandler(t *testing.T, s store.Store) (*Handler, *metricsMocks.MockCounter, *metricsMocks.MockCounter) {
	ctrl := gomock.NewController(t)

	var (
		processed = metricsMocks.NewMockCounter(ctrl)
		failed    = metricsMocks.NewMockCounter(ctrl)
	)
	return New(s, processed, failed, log.NewNopLogger()), processed, failed
}

func TestHandle(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.June, 1, 9, 30, 0, 250000000, time.UTC)

	t.Run("bucket and key", func(t *testing.T) {
		var (
			virtual               = store.NewVirtualStore(10, log.NewNopLogger())
			handler, processed, _ = newTestHandler(t, virtual)
		)
		handler.WithClock(fixedClock(now))

		processed.EXPECT().Inc().Times(1)

		response, err := handler.Handle(context.Background(), models.Input{
			Bucket: models.Some("my-bucket"),
			Key:    models.Some("receipts/123.pdf"),
		})
		if err != nil {
			t.Fatal(err)
		}

		if expected, actual := http.StatusOK, response.StatusCode; expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}

		body, err := response.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := "Stub processed", body.Message; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "receipt#receipts/123.pdf", body.Record.PK; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "2024-06-01T09:30:00.250000Z", body.Record.ProcessedAt; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}

		stored, ok := virtual.Get("receipt#receipts/123.pdf")
		if !ok {
			t.Fatal("expected record to be stored")
		}
		if expected, actual := body.Record, stored; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		var (
			virtual               = store.NewVirtualStore(10, log.NewNopLogger())
			handler, processed, _ = newTestHandler(t, virtual)
		)

		processed.EXPECT().Inc().Times(1)

		response, err := handler.Handle(context.Background(), models.Input{})
		if err != nil {
			t.Fatal(err)
		}

		if expected, actual := http.StatusOK, response.StatusCode; expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}

		body, err := response.Decode()
		if err != nil {
			t.Fatal(err)
		}
		record := body.Record
		if expected, actual := "receipt#unknown", record.PK; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "unknown", record.Bucket; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "unknown", record.ObjectKey; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
	})

	t.Run("persisted record matches input", func(t *testing.T) {
		var (
			virtual               = store.NewVirtualStore(1000, log.NewNopLogger())
			handler, processed, _ = newTestHandler(t, virtual)
		)

		processed.EXPECT().Inc().AnyTimes()

		fn := func(input models.Input) bool {
			response, err := handler.Handle(context.Background(), input)
			if err != nil {
				t.Fatal(err)
			}
			body, err := response.Decode()
			if err != nil {
				t.Fatal(err)
			}

			stored, ok := virtual.Get(body.Record.PK)
			if !ok || stored != body.Record {
				return false
			}

			key, hasKey := input.Key.Get()
			if !hasKey {
				key = "unknown"
			}
			bucket, hasBucket := input.Bucket.Get()
			if !hasBucket {
				bucket = "unknown"
			}
			return stored.PK == "receipt#"+key &&
				stored.ObjectKey == key &&
				stored.Bucket == bucket &&
				stored.Status == models.StatusStubProcessed &&
				stored.Notes == models.Notes
		}
		if err := quick.Check(fn, nil); err != nil {
			t.Error(err)
		}
	})

	t.Run("same key overwrites", func(t *testing.T) {
		var (
			virtual               = store.NewVirtualStore(10, log.NewNopLogger())
			handler, processed, _ = newTestHandler(t, virtual)
			input                 = models.Input{
				Bucket: models.Some("my-bucket"),
				Key:    models.Some("receipts/123.pdf"),
			}
			records []models.Record
		)

		processed.EXPECT().Inc().Times(2)

		for _, at := range []time.Time{now, now.Add(time.Second)} {
			handler.WithClock(fixedClock(at))

			response, err := handler.Handle(context.Background(), input)
			if err != nil {
				t.Fatal(err)
			}
			body, err := response.Decode()
			if err != nil {
				t.Fatal(err)
			}
			records = append(records, body.Record)
		}

		if expected, actual := 1, virtual.Len(); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}

		first, second := records[0], records[1]
		if first.ProcessedAt == second.ProcessedAt {
			t.Errorf("expected processedAt to differ")
		}
		second.ProcessedAt = first.ProcessedAt
		if expected, actual := first, second; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}

		stored, _ := virtual.Get(first.PK)
		if expected, actual := records[1], stored; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("exactly one write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		var (
			mock                  = storeMocks.NewMockStore(ctrl)
			handler, processed, _ = newTestHandler(t, mock)
		)
		handler.WithClock(fixedClock(now))

		want := models.NewRecord(models.Input{Key: models.Some("a.pdf")}, now)
		mock.EXPECT().Put(gomock.Any(), want).Return(nil).Times(1)
		processed.EXPECT().Inc().Times(1)

		if _, err := handler.Handle(context.Background(), models.Input{Key: models.Some("a.pdf")}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("store failure propagates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		var (
			cause              = errors.New("ResourceNotFoundException")
			mock               = storeMocks.NewMockStore(ctrl)
			handler, _, failed = newTestHandler(t, mock)
		)

		mock.EXPECT().Put(gomock.Any(), gomock.Any()).Return(cause).Times(1)
		failed.EXPECT().Inc().Times(1)

		_, err := handler.Handle(context.Background(), models.Input{})
		if expected, actual := cause, errors.Cause(err); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})
}

func TestHandleLambdaPayload(t *testing.T) {
	t.Parallel()

	for _, testcase := range []struct {
		name, payload string
		pk, bucket    string
	}{
		{"number key", `{"bucket":"my-bucket","key":123}`, "receipt#unknown", "my-bucket"},
		{"number bucket", `{"bucket":123,"key":"a.pdf"}`, "receipt#a.pdf", "unknown"},
		{"object fields", `{"bucket":{},"key":{"name":"a.pdf"}}`, "receipt#unknown", "unknown"},
		{"no fields", `{}`, "receipt#unknown", "unknown"},
	} {
		testcase := testcase
		t.Run(testcase.name, func(t *testing.T) {
			var (
				virtual               = store.NewVirtualStore(10, log.NewNopLogger())
				handler, processed, _ = newTestHandler(t, virtual)
			)

			processed.EXPECT().Inc().Times(1)

			b, err := lambda.NewHandler(handler.Handle).Invoke(context.Background(), []byte(testcase.payload))
			if err != nil {
				t.Fatal(err)
			}

			var response models.Response
			if err := json.Unmarshal(b, &response); err != nil {
				t.Fatal(err)
			}
			if expected, actual := http.StatusOK, response.StatusCode; expected != actual {
				t.Errorf("expected: %d, actual: %d", expected, actual)
			}

			stored, ok := virtual.Get(testcase.pk)
			if expected, actual := true, ok; expected != actual {
				t.Fatalf("expected: %t, actual: %t", expected, actual)
			}
			if expected, actual := testcase.bucket, stored.Bucket; expected != actual {
				t.Errorf("expected: %q, actual: %q", expected, actual)
			}
		})
	}
}
