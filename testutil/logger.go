package testutil

import (
	"flag"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	logFile   string
	logLevel  = "info"
	logStderr bool

	setupOnce sync.Once
)

func init() {
	flag.StringVar(&logFile, "log-file", logFile, "`file` to log to instead of the default")
	flag.StringVar(&logLevel, "log-level", logLevel, "log level for tests")
	flag.BoolVar(&logStderr, "log-stderr", logStderr, "log to standard error")
}

// SetupLogger returns a logger for a store or component under test, writing to file unless
// a log file or standard error was given on the command line. The first call also points the
// standard logger at the same place.
func SetupLogger(file string) *log.Logger {
	var w io.Writer = os.Stderr
	if !logStderr {
		if logFile != "" {
			file = logFile
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		w = f
	}

	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		panic(err)
	}

	setupOnce.Do(func() {
		log.SetOutput(w)
		log.SetLevel(lvl)
	})

	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.WithFields(log.Fields{"pid": os.Getpid(), "file": file}).Info("testutil: logging")
	return logger
}
