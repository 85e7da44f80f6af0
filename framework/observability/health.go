// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akriventsev/library-gateway/framework/core"
)

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Healthy   bool                   `json:"healthy"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthChecker набор проверок с общим таймаутом
type HealthChecker struct {
	timeout time.Duration
	mu      sync.RWMutex
	checks  []HealthCheck
}

// NewHealthChecker создает HealthChecker; timeout ограничивает каждую проверку
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{timeout: timeout}
}

// Register регистрирует проверку
func (h *HealthChecker) Register(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RegisterComponent регистрирует компонент, умеющий проверять себя
func (h *HealthChecker) RegisterComponent(name string, component core.HealthCheckable) {
	h.Register(NewComponentHealthCheck(name, component))
}

// Names возвращает имена проверок в алфавитном порядке
func (h *HealthChecker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// Check выполняет все проверки параллельно
func (h *HealthChecker) Check(ctx context.Context) HealthCheckResult {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := check.Check(checkCtx)
			res := CheckResult{Status: "healthy", Duration: time.Since(start)}
			if err != nil {
				res.Status = "unhealthy"
				res.Message = err.Error()
			}

			mu.Lock()
			result.Checks[check.Name()] = res
			if err != nil {
				result.Healthy = false
			}
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return result
}

// ComponentHealthCheck проверка компонента, реализующего core.HealthCheckable
type ComponentHealthCheck struct {
	name      string
	component core.HealthCheckable
}

// NewComponentHealthCheck создает проверку компонента
func NewComponentHealthCheck(name string, component core.HealthCheckable) *ComponentHealthCheck {
	return &ComponentHealthCheck{name: name, component: component}
}

// Name возвращает имя проверки
func (c *ComponentHealthCheck) Name() string {
	return c.name
}

// Check выполняет проверку
func (c *ComponentHealthCheck) Check(ctx context.Context) error {
	if c.component == nil {
		return fmt.Errorf("%s: component is nil", c.name)
	}
	return c.component.HealthCheck(ctx)
}

// CheckFunc проверка на основе функции
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc создает проверку из функции
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name возвращает имя проверки
func (c *CheckFunc) Name() string {
	return c.name
}

// Check выполняет проверку
func (c *CheckFunc) Check(ctx context.Context) error {
	if c.fn == nil {
		return fmt.Errorf("%s: check function is nil", c.name)
	}
	return c.fn(ctx)
}
