package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inventory-app/glossary-sync/pkg/config"
)

var sampleOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a sample configuration file with the default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSample(sampleOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", sampleOutput)
		return nil
	},
}

func init() {
	configSampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "config.yaml.sample", "file to write")
	configCmd.AddCommand(configSampleCmd)
}
