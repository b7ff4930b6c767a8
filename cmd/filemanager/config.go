package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orcabus/filemanager/internal/apperrors"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration after defaults and overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Secrets stay out of inspection output.
		cfg.S3.SecretAccessKey = ""

		switch configFormat {
		case "toml":
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		case "yaml":
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return apperrors.Wrap(apperrors.KindSerde, "encode config", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		default:
			return apperrors.New(apperrors.KindConfig, "unknown output format "+configFormat)
		}
	},
}

func init() {
	configCmd.Flags().StringVar(&configFormat, "format", "toml", "output format: toml or yaml")
	rootCmd.AddCommand(configCmd)
}
