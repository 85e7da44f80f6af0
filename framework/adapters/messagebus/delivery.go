package messagebus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/transport"
)

// RedeliveryPolicy политика повторной доставки при ошибке обработчика
type RedeliveryPolicy struct {
	// MaxRedeliveries число повторов после первой попытки
	MaxRedeliveries int
	// Delay пауза между попытками
	Delay time.Duration
}

// DefaultRedeliveryPolicy возвращает политику по умолчанию
func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{MaxRedeliveries: 5, Delay: 200 * time.Millisecond}
}

// deliver вызывает handler, повторяя попытки по политике. Возвращает
// последнюю ошибку, если все попытки исчерпаны.
func (p RedeliveryPolicy) deliver(ctx context.Context, driver string, o options, msg *transport.Message, handler transport.MessageHandler) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := handler(ctx, msg)
		o.metrics.RecordTransport(ctx, driver, "consume", time.Since(start), err == nil)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRedeliveries {
			o.logger.Error("message handling exhausted redeliveries",
				zap.String("subject", msg.Subject),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return err
		}
		o.logger.Warn("message handler failed, redelivering",
			zap.String("subject", msg.Subject),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
}
