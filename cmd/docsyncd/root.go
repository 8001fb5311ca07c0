package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/c0deZ3R0/go-docsync/logging"
	"github.com/c0deZ3R0/go-docsync/schema"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docsyncd",
	Short: "Offline-first document sync daemon",
	Long: `docsyncd keeps a local SQLite document store reconciled with a
remote document server: local writes queue in a durable transaction log
and forward in the background, remote changes stream back in over SSE.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default docsyncd.yaml in the working directory)")
	pf.String("db", "docsync.db", "path of the local SQLite database")
	pf.String("schema", "", "YAML schema file (built-in books schema when empty)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	pf.String("log-file", "", "log file with rotation (stderr when empty)")

	viper.BindPFlag("db", pf.Lookup("db"))
	viper.BindPFlag("schema", pf.Lookup("schema"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
	viper.BindPFlag("log.file", pf.Lookup("log-file"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docsyncd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("DOCSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errorsAs(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: could not read config: %v\n", err)
		}
	}
}

// errorsAs is a tiny shim so initConfig reads cleanly.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	v, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = v
	}
	return ok
}

// newLogger builds the process logger from config. With log.file set the
// output rotates via lumberjack; otherwise it goes to stderr.
func newLogger() *logging.Logger {
	config := logging.Config{
		Level:       viper.GetString("log.level"),
		Format:      viper.GetString("log.format"),
		Environment: logging.EnvProduction,
	}

	var w io.Writer = os.Stderr
	if file := viper.GetString("log.file"); file != "" {
		w = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	logging.InitWithWriter(config, w)
	return logging.Default()
}

// loadSchema reads the configured schema file, falling back to the
// built-in one.
func loadSchema() (*schema.Schema, error) {
	path := viper.GetString("schema")
	if path == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(path)
}
