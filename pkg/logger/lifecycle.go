/* pkg/logger/lifecycle.go */

package logger

import (
	"github.com/google/uuid"
)

// GenerateTraceID returns a short 8-char trace ID, used when tracing is off.
func GenerateTraceID() string {
	return uuid.New().String()[:8]
}
