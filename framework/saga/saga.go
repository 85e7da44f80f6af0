// Package saga предоставляет выполнение Saga Pattern: упорядоченные шаги
// над общим состоянием и обратную компенсацию завершенных шагов при отказе.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/metrics"
)

// Status статус выполнения саги
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusCompensated Status = "compensated"
	StatusFailed      Status = "failed"
)

// StepStatus статус выполнения шага
type StepStatus string

const (
	StepStatusCompleted          StepStatus = "completed"
	StepStatusSkipped            StepStatus = "skipped"
	StepStatusFailed             StepStatus = "failed"
	StepStatusCompensated        StepStatus = "compensated"
	StepStatusCompensationFailed StepStatus = "compensation_failed"
)

// History запись истории выполнения шага
type History struct {
	Step      string
	Status    StepStatus
	StartedAt time.Time
	Duration  time.Duration
	Error     error
}

// Execution результат одного запуска саги
type Execution struct {
	ID        string
	Saga      string
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	History   []History
	// CompensationErrors ошибки compensating actions, если они были
	CompensationErrors []error
}

// FailedStep возвращает имя шага, на котором сага остановилась
func (e *Execution) FailedStep() string {
	for _, h := range e.History {
		if h.Status == StepStatusFailed {
			return h.Step
		}
	}
	return ""
}

// StepError ошибка forward action шага
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Definition определение саги с шагами. После построения определение
// неизменяемо и может выполняться конкурентно.
type Definition[S any] struct {
	name    string
	steps   []Step[S]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDefinition создает новое определение саги
func NewDefinition[S any](name string) *Definition[S] {
	return &Definition[S]{
		name:   name,
		logger: zap.NewNop(),
	}
}

// AddStep добавляет шаг в сагу
func (d *Definition[S]) AddStep(step Step[S]) *Definition[S] {
	d.steps = append(d.steps, step)
	return d
}

// WithLogger устанавливает логгер
func (d *Definition[S]) WithLogger(logger *zap.Logger) *Definition[S] {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithMetrics устанавливает сборщик метрик
func (d *Definition[S]) WithMetrics(m *metrics.Metrics) *Definition[S] {
	d.metrics = m
	return d
}

// Name возвращает имя определения саги
func (d *Definition[S]) Name() string {
	return d.name
}

// Steps возвращает имена шагов в порядке выполнения
func (d *Definition[S]) Steps() []string {
	names := make([]string, len(d.steps))
	for i, step := range d.steps {
		names[i] = step.Name()
	}
	return names
}

// Validate проверяет определение
func (d *Definition[S]) Validate() error {
	if d.name == "" {
		return errors.New("saga name is required")
	}
	if len(d.steps) == 0 {
		return fmt.Errorf("saga %s must have at least one step", d.name)
	}
	seen := make(map[string]bool, len(d.steps))
	for _, step := range d.steps {
		if step.Name() == "" {
			return fmt.Errorf("saga %s has a step without name", d.name)
		}
		if seen[step.Name()] {
			return fmt.Errorf("saga %s: duplicate step name: %s", d.name, step.Name())
		}
		seen[step.Name()] = true
	}
	return nil
}

// Execute выполняет шаги по порядку. При ошибке шага завершенные шаги
// компенсируются в обратном порядке, а возвращается *StepError с исходной
// причиной. Повторов нет: шаг выполняется ровно один раз.
func (d *Definition[S]) Execute(ctx context.Context, state *S) (*Execution, error) {
	exec := &Execution{
		ID:        uuid.NewString(),
		Saga:      d.name,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	log := d.logger.With(zap.String("saga", d.name), zap.String("saga_id", exec.ID))

	completed := make([]Step[S], 0, len(d.steps))
	for _, step := range d.steps {
		if !step.CanExecute(ctx, state) {
			exec.History = append(exec.History, History{
				Step:      step.Name(),
				Status:    StepStatusSkipped,
				StartedAt: time.Now(),
			})
			d.metrics.RecordSagaStep(ctx, d.name, step.Name(), string(StepStatusSkipped))
			log.Debug("saga step skipped", zap.String("step", step.Name()))
			continue
		}

		started := time.Now()
		err := step.Execute(ctx, state)
		entry := History{
			Step:      step.Name(),
			StartedAt: started,
			Duration:  time.Since(started),
		}
		if err != nil {
			entry.Status = StepStatusFailed
			entry.Error = err
			exec.History = append(exec.History, entry)
			d.metrics.RecordSagaStep(ctx, d.name, step.Name(), string(StepStatusFailed))
			log.Warn("saga step failed", zap.String("step", step.Name()), zap.Error(err))

			d.compensate(ctx, log, exec, completed, state)
			d.finish(ctx, exec)
			return exec, &StepError{Step: step.Name(), Err: err}
		}

		entry.Status = StepStatusCompleted
		exec.History = append(exec.History, entry)
		completed = append(completed, step)
		d.metrics.RecordSagaStep(ctx, d.name, step.Name(), string(StepStatusCompleted))
		log.Debug("saga step completed", zap.String("step", step.Name()), zap.Duration("duration", entry.Duration))
	}

	exec.Status = StatusCompleted
	d.finish(ctx, exec)
	return exec, nil
}

func (d *Definition[S]) compensate(ctx context.Context, log *zap.Logger, exec *Execution, completed []Step[S], state *S) {
	exec.Status = StatusCompensated
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if !step.HasCompensation() {
			continue
		}

		started := time.Now()
		err := step.Compensate(ctx, state)
		entry := History{
			Step:      step.Name(),
			StartedAt: started,
			Duration:  time.Since(started),
			Status:    StepStatusCompensated,
		}
		if err != nil {
			entry.Status = StepStatusCompensationFailed
			entry.Error = err
			exec.Status = StatusFailed
			exec.CompensationErrors = append(exec.CompensationErrors, &StepError{Step: step.Name(), Err: err})
			log.Error("saga compensation failed", zap.String("step", step.Name()), zap.Error(err))
		} else {
			log.Info("saga step compensated", zap.String("step", step.Name()))
		}
		exec.History = append(exec.History, entry)
		d.metrics.RecordSagaStep(ctx, d.name, step.Name(), string(entry.Status))
	}
}

func (d *Definition[S]) finish(ctx context.Context, exec *Execution) {
	exec.Duration = time.Since(exec.StartedAt)
	d.metrics.RecordSaga(ctx, d.name, string(exec.Status), exec.Duration)
}
