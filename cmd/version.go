package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leftmike/pax/sql"
)

func init() {
	paxCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Pax",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(sql.Version())
			},
		})
}
