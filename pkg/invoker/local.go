package invoker

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/trussle/expense/pkg/models"
)

type localInvoker struct {
	handler Invoker
	logger  log.Logger
}

func newLocalInvoker(handler Invoker, logger log.Logger) Invoker {
	return &localInvoker{
		handler: handler,
		logger:  logger,
	}
}

func (l *localInvoker) Invoke(ctx context.Context, input models.Input) (models.Response, error) {
	level.Debug(l.logger).Log("state", "invoke", "mode", "local")
	return l.handler.Invoke(ctx, input)
}
