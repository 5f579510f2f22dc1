package sql

import (
	"fmt"
	"runtime"
)

const (
	MajorVersion = 0
	MinorVersion = 1
)

func Version() string {
	return fmt.Sprintf("Pax %d.%d on %s %s, compiled by %s", MajorVersion, MinorVersion,
		runtime.GOARCH, runtime.GOOS, runtime.Version())
}
