package invoker

import (
	"context"

	"github.com/trussle/expense/pkg/models"
)

// Func adapts a function, such as processor.Handler.Handle, to an Invoker.
type Func func(context.Context, models.Input) (models.Response, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, input models.Input) (models.Response, error) {
	return f(ctx, input)
}
