package safe

import (
	"teamchat/logger"

	"go.uber.org/zap"
)

// Go starts a goroutine that recovers from panics,
// so a single bad handler doesn't take the process down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("name", name), zap.Any("panic", r))
			}
		}()
		f()
	}()
}
