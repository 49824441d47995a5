package executor

import (
	"context"

	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

// Direct runs each task on the submitting goroutine before Submit returns.
type Direct struct{}

// Submit runs task synchronously.
func (Direct) Submit(task dispatch.Task) error {
	if task != nil {
		task(context.Background())
	}
	return nil
}

var (
	_ dispatch.Executor = Direct{}
	_ dispatch.Executor = (*Executor)(nil)
)
