// Package version хранит сведения о сборке, подставляемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/positsync/internal/version.version=1.4.0 \
//	  -X github.com/vladislavdragonenkov/positsync/internal/version.commit=$(git rev-parse --short HEAD) \
//	  -X github.com/vladislavdragonenkov/positsync/internal/version.date=$(date -u +%FT%TZ)"
package version

import "fmt"

const product = "positsync"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", product, version, commit, date)
}

// UserAgent используется в исходящих запросах к POSIT.
func UserAgent() string {
	if commit == "unknown" || commit == "" {
		return product + "/" + version
	}
	return fmt.Sprintf("%s/%s (%s)", product, version, commit)
}
