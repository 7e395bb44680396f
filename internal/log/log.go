// Package log centralizes logger construction so every component gets a
// consistently named, consistently leveled *logging.Logger.
package log

import (
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

var (
	backend   logging.LeveledBackend
	formatter = logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
	)
)

func init() {
	base := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(base, formatter)
	backend = logging.AddModuleLevel(formatted)
	backend.SetLevel(logging.NOTICE, "")
}

// SetLevel sets the minimum level logged by every logger returned from New.
// Valid levels mirror go-logging's: CRITICAL, ERROR, WARNING, NOTICE, INFO, DEBUG.
func SetLevel(level string) error {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return err
	}
	backend.SetLevel(lvl, "")
	return nil
}

// New returns a named logger, e.g. log.New("writer") for the stateful
// writer's diagnostics.
func New(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(backend)
	return l
}
