// Package core предоставляет базовые интерфейсы для компонентов шлюза.
package core

import "context"

// ComponentType тип компонента
type ComponentType string

const (
	ComponentTypeTransport  ComponentType = "transport"
	ComponentTypeMessageBus ComponentType = "messagebus"
	ComponentTypeWorker     ComponentType = "worker"
)

// Component базовый интерфейс для всех компонентов
type Component interface {
	// Name возвращает имя компонента
	Name() string
	// Type возвращает тип компонента
	Type() ComponentType
}

// Lifecycle интерфейс для управления жизненным циклом компонентов
type Lifecycle interface {
	// Start запускает компонент
	Start(ctx context.Context) error
	// Stop останавливает компонент
	Stop(ctx context.Context) error
	// IsRunning проверяет, запущен ли компонент
	IsRunning() bool
}

// HealthCheckable интерфейс для проверки здоровья компонентов
type HealthCheckable interface {
	// HealthCheck проверяет здоровье компонента
	HealthCheck(ctx context.Context) error
}
