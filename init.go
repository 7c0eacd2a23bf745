package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lansync/lansyncd/internal/config"
)

func newInitCmd() *cobra.Command {
	var homePath string

	var dirNames []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Annotations: map[string]string{
			skipConfigAnnotation: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, homePath, dirNames)
		},
	}

	cmd.Flags().StringVar(&homePath, "home", "", "absolute path to the sync home directory (required)")
	cmd.Flags().StringSliceVar(&dirNames, "dir", nil, "a directory under home to sync (repeatable)")

	cmd.MarkFlagRequired("home")

	return cmd
}

func runInit(cmd *cobra.Command, homePath string, dirNames []string) error {
	cc := mustCLIContext(cmd.Context())

	cfg := config.DefaultConfig()
	cfg.HomePath = homePath

	for _, name := range dirNames {
		cfg.Directories = append(cfg.Directories, config.Directory{Name: name})
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config would be invalid: %w", err)
	}

	if err := config.Write(cc.CfgPath, cfg); err != nil {
		return err
	}

	cc.Statusf("wrote config to %s\n", cc.CfgPath)

	return nil
}
