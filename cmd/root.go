package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BerniceZTT/crm_engagement/config"
	"github.com/BerniceZTT/crm_engagement/utils"
)

const app = "crm-engagement"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "crm-engagement serves the candidate engagement ledger and its maintenance tools",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml); defaults and CRM_* env are used when unset")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("storage", "", "storage driver: mongo, sqlite or memory")
	rootCmd.PersistentFlags().String("sqlite-path", "", "sqlite database file")
	rootCmd.PersistentFlags().String("remarks-file", "", "remark rules yaml file (hot reloaded by serve)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("storage.driver", rootCmd.PersistentFlags().Lookup("storage"))
	_ = viper.BindPFlag("sqlite.path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	_ = viper.BindPFlag("remarks.file", rootCmd.PersistentFlags().Lookup("remarks-file"))
}

// loadConfig 读取配置文件（可选）后解析配置并初始化日志
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	utils.InitLogger(cfg.Debug, cfg.JSONLog)
	utils.SetJWTSecret(cfg.JWTKey)
	return cfg, nil
}
