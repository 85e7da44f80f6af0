package saga

import (
	"context"
)

// trace состояние тестовой саги: журнал вызванных действий
type trace struct {
	calls []string
}

func recordingStep(name string, execErr, compErr error) *BaseStep[trace] {
	return NewBaseStep[trace](name).
		WithExecute(func(ctx context.Context, st *trace) error {
			st.calls = append(st.calls, "exec:"+name)
			return execErr
		}).
		WithCompensate(func(ctx context.Context, st *trace) error {
			st.calls = append(st.calls, "comp:"+name)
			return compErr
		})
}
