package audit

import (
	"context"

	"github.com/trussle/expense/pkg/models"
)

type nop struct{}

func newNopLog() Log { return nop{} }

func (nop) Append(context.Context, models.Execution) error { return nil }
