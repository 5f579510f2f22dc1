package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/pax/engine"
	"github.com/leftmike/pax/parser"
	"github.com/leftmike/pax/repl"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl [file ...]",
		Short: "Run commands from files, or an interactive console session",
		RunE:  replRun,
	}

	execArgs = []string{}
)

func init() {
	replCmd.Flags().StringArrayVarP(&execArgs, "exec", "x", execArgs, "`command` to execute")

	paxCmd.AddCommand(replCmd)
}

func replRun(cmd *cobra.Command, args []string) error {
	e, err := engine.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("pax: interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	for idx, x := range execArgs {
		repl.Run(ctx, e, parser.NewParser(strings.NewReader(x), fmt.Sprintf("exec[%d]", idx+1)),
			os.Stdout)
	}

	for _, fn := range args {
		f, err := os.Open(fn)
		if err != nil {
			return fmt.Errorf("pax: %s", err)
		}
		repl.Run(ctx, e, parser.NewParser(bufio.NewReader(f), fn), os.Stdout)
		f.Close()
	}

	if len(args) == 0 && len(execArgs) == 0 {
		signal.Stop(sigs)
		repl.Interact(ctx, e)
	}
	return nil
}
