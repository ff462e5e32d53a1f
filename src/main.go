package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sevr/src/core"
	"sevr/src/settings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sevr",
	Short: "Schema registry and meta ledger over a document store",
	Long: `sevr loads collection definitions, validates their cross-collection
references, connects to the document store and tracks which collections
have been written to.`,
	Example: `  sevr --definitions=collections.yaml
  sevr --backend=file --datadir=/data --debug`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := settings.Defaults()
	flags := rootCmd.Flags()
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./sevr.yaml)")
	flags.String("backend", defaults.Backend, "Document store backend (mongo, file, memory)")
	flags.String("host", defaults.Connection.Host, "MongoDB host")
	flags.Int("port", defaults.Connection.Port, "MongoDB port")
	flags.String("database", defaults.Connection.Database, "MongoDB database name")
	flags.String("username", "", "MongoDB user")
	flags.String("password", "", "MongoDB password")
	flags.String("datadir", defaults.DataDir, "Directory to store data files for the file backend")
	flags.String("definitions", defaults.DefinitionsFile, "Collection definitions file")
	flags.String("logfile", "", "Also write logs to this file")
	flags.Bool("debug", false, "Enable development logging")
	flags.Bool("verbose", false, "Print the resolved settings at startup")

	_ = viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("connection.host", flags.Lookup("host"))
	_ = viper.BindPFlag("connection.port", flags.Lookup("port"))
	_ = viper.BindPFlag("connection.database", flags.Lookup("database"))
	_ = viper.BindPFlag("connection.username", flags.Lookup("username"))
	_ = viper.BindPFlag("connection.password", flags.Lookup("password"))
	_ = viper.BindPFlag("datadir", flags.Lookup("datadir"))
	_ = viper.BindPFlag("definitions", flags.Lookup("definitions"))
	_ = viper.BindPFlag("logfile", flags.Lookup("logfile"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

func initConfig() {
	viper.SetEnvPrefix("SEVR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("sevr")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Warning: could not read config file: %v", err)
		}
	}
}

func run(cmd *cobra.Command, _ []string) error {
	args := settings.GetSettings()
	if err := viper.Unmarshal(args); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	args.ConfigFile = viper.ConfigFileUsed()

	if args.Verbose {
		log.Println("sevr starting with options:")
		log.Printf("  Backend: %s\n", args.Backend)
		log.Printf("  Connection: %s:%d/%s\n", args.Connection.Host, args.Connection.Port, args.Connection.Database)
		log.Printf("  Data Directory: %s\n", args.DataDir)
		log.Printf("  Definitions: %s\n", args.DefinitionsFile)
		log.Printf("  Config File: %s\n", args.ConfigFile)
	}

	app, err := core.InitSevr(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Connect(ctx); err != nil {
		return err
	}

	ledger, err := app.InitMeta(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize meta collection: %w", err)
	}
	app.Logger().Infow("Meta ledger ready", "newDatabase", ledger.NewDatabase, "collections", len(ledger.Collections))

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
