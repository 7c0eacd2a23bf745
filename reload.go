package main

import (
	"github.com/spf13/cobra"

	"github.com/lansync/lansyncd/internal/config"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Signal a running daemon to re-read its config file",
		Annotations: map[string]string{
			skipConfigAnnotation: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(config.DefaultPIDPath()); err != nil {
				return err
			}

			cc.Statusf("reload signal sent\n")

			return nil
		},
	}
}
