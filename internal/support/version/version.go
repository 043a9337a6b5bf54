// Package version — имя и версия сборки. Version переопределяется при сборке:
//
//	go build -ldflags "-X telegram-inbox/internal/support/version.Version=1.2.3"
package version

var (
	Name    = "telegram-inbox"
	Version = "0.1.0-dev"
)
