package cmd

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pax/config"
)

var (
	paxCmd = &cobra.Command{
		Use:               "pax",
		Short:             "A PAX storage engine",
		Long:              "Pax is an in-memory tile group storage engine with MVCC transactions.",
		SilenceUsage:      true,
		PersistentPreRunE: paxPreRun,
		PersistentPostRun: paxPostRun,
	}

	logStderr = false
	logWriter io.WriteCloser

	configFile = "pax.hcl"
	noConfig   = false

	cfg = config.Default()
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := paxCmd.PersistentFlags()
	fs.AddFlagSet(cfg.FlagSet())

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

func Execute() error {
	return paxCmd.Execute()
}

func paxPreRun(cmd *cobra.Command, args []string) error {
	if configFile != "" && !noConfig {
		_, err := os.Stat(configFile)
		if err == nil || !os.IsNotExist(err) || cmd.Flags().Changed("config-file") {
			err = cfg.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("pax: %s", err)
			}
		}
	}

	if !logStderr && cfg.LogFile != "" {
		var err error
		logWriter, err = os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("pax: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("pax: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("pax starting")
	return nil
}

func paxPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("pax done")

	if logWriter != nil {
		logWriter.Close()
	}
}
