package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hon-client",
	Short: "Control hOn appliances through the vendor cloud",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the command line, exiting non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hon-client.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-location", "stderr", "stdout, stderr or a file name")
	rootCmd.PersistentFlags().String("log-format", "text", "text or json")
	rootCmd.PersistentFlags().String("token-file", "", "hOn token state written by a login")
	rootCmd.PersistentFlags().String("api-url", "", "hOn API base URL")
	rootCmd.PersistentFlags().Duration("api-timeout", 0, "maximum duration of a hOn API call, eg. 1m or 10s")
	rootCmd.PersistentFlags().String("fixtures", "", "directory of captured appliance payloads to load as extra appliances")
	rootCmd.PersistentFlags().Int("concurrency", 4, "appliances loaded at the same time")

	errPanic(viper.BindPFlag("logging.debug", rootCmd.PersistentFlags().Lookup("debug")))
	errPanic(viper.BindPFlag("logging.location", rootCmd.PersistentFlags().Lookup("log-location")))
	errPanic(viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format")))
	errPanic(viper.BindPFlag("hon.token-file", rootCmd.PersistentFlags().Lookup("token-file")))
	errPanic(viper.BindPFlag("hon.api-url", rootCmd.PersistentFlags().Lookup("api-url")))
	errPanic(viper.BindPFlag("hon.api-timeout", rootCmd.PersistentFlags().Lookup("api-timeout")))
	errPanic(viper.BindPFlag("hon.fixtures", rootCmd.PersistentFlags().Lookup("fixtures")))
	errPanic(viper.BindPFlag("hon.concurrency", rootCmd.PersistentFlags().Lookup("concurrency")))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".hon-client")
	}

	viper.SetEnvPrefix("HON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if viper.GetBool("logging.debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return errors.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// checkSessionFlags requires a token file unless fixtures are given
func checkSessionFlags() error {
	if viper.GetString("hon.fixtures") != "" {
		return nil
	}
	return checkRequiredFlags("hon.token-file")
}
