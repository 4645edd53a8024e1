package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/flashsale/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает только номер версии (для health и gRPC метаданных).
func Version() string { return version }

func String() string {
	return fmt.Sprintf("flashsale version=%s commit=%s date=%s", version, commit, date)
}

// Fields отдаёт сведения о сборке полями для стартового лога.
func Fields() log.Fields {
	return log.Fields{
		"version": version,
		"commit":  commit,
		"built":   date,
	}
}
