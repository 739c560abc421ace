package audit

import (
	"context"
	"sync"

	"github.com/trussle/expense/pkg/models"
)

// VirtualLog keeps every appended execution in memory.
type VirtualLog struct {
	mutex      sync.RWMutex
	executions []models.Execution
}

// NewVirtualLog creates an empty VirtualLog
func NewVirtualLog() *VirtualLog {
	return &VirtualLog{}
}

// Append an execution to the log
func (v *VirtualLog) Append(ctx context.Context, execution models.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mutex.Lock()
	v.executions = append(v.executions, execution)
	v.mutex.Unlock()
	return nil
}

// Executions returns a copy of the appended executions, oldest first.
func (v *VirtualLog) Executions() []models.Execution {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	res := make([]models.Execution, len(v.executions))
	copy(res, v.executions)
	return res
}
