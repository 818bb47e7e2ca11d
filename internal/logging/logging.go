// Package logging wraps zerolog the way the teacher's wb-go/wbf/zlog
// package does: a package-level Init plus a chained, leveled Logger value
// threaded through constructors.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// Init configures the global structured logger. Call once at process
// startup, mirroring the teacher's zlog.Init() call site in cmd/*/main.go.
func Init(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	Logger = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
