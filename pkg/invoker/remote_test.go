package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"testing/quick"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

type fakeLambda struct {
	lambdaiface.LambdaAPI
	input  *lambda.InvokeInput
	output *lambda.InvokeOutput
	err    error
}

func (f *fakeLambda) InvokeWithContext(ctx aws.Context, input *lambda.InvokeInput, opts ...request.Option) (*lambda.InvokeOutput, error) {
	f.input = input
	return f.output, f.err
}

func TestRemoteConfigBuild(t *testing.T) {
	t.Parallel()

	fn := func(id, secret, token, region, endpoint, function string) bool {
		config, err := BuildRemoteConfig(
			WithEC2Role(true),
			WithID(id),
			WithSecret(secret),
			WithToken(token),
			WithRegion(region),
			WithEndpoint(endpoint),
			WithFunction(function),
		)
		if err != nil {
			t.Fatal(err)
		}
		return config.EC2Role &&
			config.ID == id &&
			config.Secret == secret &&
			config.Token == token &&
			config.Region == region &&
			config.Endpoint == endpoint &&
			config.Function == function
	}

	if err := quick.Check(fn, nil); err != nil {
		t.Error(err)
	}
}

func TestRemoteInvoke(t *testing.T) {
	t.Parallel()

	t.Run("payload and response", func(t *testing.T) {
		want := models.Response{StatusCode: http.StatusOK, Body: `{"message":"Stub processed"}`}
		payload, err := json.Marshal(want)
		if err != nil {
			t.Fatal(err)
		}

		var (
			client  = &fakeLambda{output: &lambda.InvokeOutput{Payload: payload}}
			invoker = newRemoteInvokerWithClient(client, "ExpenseProcessorFn", log.NewNopLogger())
		)

		got, err := invoker.Invoke(context.Background(), models.Input{
			Bucket: models.Some("my-bucket"),
			Key:    models.Some("receipts/123.pdf"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := want, got; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}

		if expected, actual := "ExpenseProcessorFn", aws.StringValue(client.input.FunctionName); expected != actual {
			t.Errorf("expected: %s, actual: %s", expected, actual)
		}
		if expected, actual := lambda.InvocationTypeRequestResponse, aws.StringValue(client.input.InvocationType); expected != actual {
			t.Errorf("expected: %s, actual: %s", expected, actual)
		}
		if expected, actual := `{"bucket":"my-bucket","key":"receipts/123.pdf"}`, string(client.input.Payload); expected != actual {
			t.Errorf("expected: %s, actual: %s", expected, actual)
		}
	})

	t.Run("absent fields are null", func(t *testing.T) {
		var (
			client  = &fakeLambda{output: &lambda.InvokeOutput{Payload: []byte(`{"statusCode":200}`)}}
			invoker = newRemoteInvokerWithClient(client, "fn", log.NewNopLogger())
		)

		if _, err := invoker.Invoke(context.Background(), models.Input{}); err != nil {
			t.Fatal(err)
		}
		if expected, actual := `{"bucket":null,"key":null}`, string(client.input.Payload); expected != actual {
			t.Errorf("expected: %s, actual: %s", expected, actual)
		}
	})

	t.Run("function error", func(t *testing.T) {
		var (
			client = &fakeLambda{output: &lambda.InvokeOutput{
				FunctionError: aws.String("Unhandled"),
				Payload:       []byte(`{"errorType":"errorString","errorMessage":"persist record: throttled"}`),
			}}
			invoker = newRemoteInvokerWithClient(client, "fn", log.NewNopLogger())
		)

		_, err := invoker.Invoke(context.Background(), models.Input{})
		fnErr, ok := errors.Cause(err).(*FunctionError)
		if !ok {
			t.Fatalf("expected FunctionError, actual: %T", err)
		}
		if expected, actual := "persist record: throttled", fnErr.Message; expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
		if expected, actual := "Unhandled: errorString: persist record: throttled", fnErr.Error(); expected != actual {
			t.Errorf("expected: %q, actual: %q", expected, actual)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		var (
			cause   = errors.New("TooManyRequestsException")
			client  = &fakeLambda{err: cause}
			invoker = newRemoteInvokerWithClient(client, "fn", log.NewNopLogger())
		)

		_, err := invoker.Invoke(context.Background(), models.Input{})
		if expected, actual := cause, errors.Cause(err); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})
}
