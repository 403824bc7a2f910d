package app

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/config"
	"github.com/kdimtricp/camsearch/internal/logging"
)

const configFlag = "config"

// BindCommonFlags registers --config, --log-level and --log-format on cmd
// and binds the logging flags into v.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String(configFlag, "", "config file (yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("log.format", flags.Lookup("log-format"))
}

// Setup loads configuration for cmd and builds the logger it describes.
func Setup(cmd *cobra.Command, v *viper.Viper) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString(configFlag)
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
