// common/safe/safe.go
package safe

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/logger"
)

// Call выполняет fn, перехватывая panic. Паника логируется и возвращается
// как ошибка, вызывающая горутина продолжает работу.
func Call(log *logger.Logger, name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered",
				zap.String("callback", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("safe: %s panicked: %v", name, r)
		}
	}()
	fn()
	return nil
}
