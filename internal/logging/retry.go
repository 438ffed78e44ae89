package logger

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// Leveled adapts a Logger to retryablehttp.LeveledLogger so retry attempts
// show up alongside the rest of the command output.
func (l Logger) Leveled() retryablehttp.LeveledLogger {
	return leveledLogger{log: l}
}

type leveledLogger struct {
	log Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Infof("%s", format(msg, keysAndValues))
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s", format(msg, keysAndValues))
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s", format(msg, keysAndValues))
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s", format(msg, keysAndValues))
}

func format(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}
