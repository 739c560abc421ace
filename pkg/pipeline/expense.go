package pipeline

import (
	"github.com/go-kit/kit/log"
	"github.com/trussle/expense/pkg/invoker"
)

// Names of the expense pipeline and its steps.
const (
	ExpensePipeline = "ExpensePipelineStateMachine"
	TextractStep    = "RunTextractStub"
	PIIStep         = "ScanPIIStub"
	PersistStep     = "FraudAndPersist"
)

type placeholder struct {
	Message string `json:"message"`
}

// NewExpense builds the receipt pipeline: two placeholder steps followed by
// the invocation of the handler named function through invoker.
//
// The placeholders keep their results under $.textract and $.pii so the
// triggering event is still the state the handler invocation reads from.
func NewExpense(function string, inv invoker.Invoker, logger log.Logger) (*Pipeline, error) {
	textract, err := NewPass(TextractStep, "Replace with actual Textract task", placeholder{"Textract placeholder"})
	if err != nil {
		return nil, err
	}
	pii, err := NewPass(PIIStep, "Replace with actual Comprehend task", placeholder{"Comprehend placeholder"})
	if err != nil {
		return nil, err
	}
	persist := NewInvoke(PersistStep, "Stub fraud logic and DynamoDB write", function, inv)

	p := New(ExpensePipeline, "Receipt ingestion pipeline", logger)
	for _, s := range []struct {
		step Step
		path string
	}{
		{textract, "$.textract"},
		{pii, "$.pii"},
		{persist, RootPath},
	} {
		if err := p.Then(s.step, s.path); err != nil {
			return nil, err
		}
	}
	return p, nil
}
