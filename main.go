package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	roomchat "github.com/putto11262002/roomchat/app"
)

var rootCmd = &cobra.Command{
	Use:           "roomchat",
	Short:         "Group chat server with moderated rooms",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

var flagConfig string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to the config file (default ./config.yaml when present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprint(os.Stderr, roomchat.FormatValidationErrors(verrs))
		} else {
			fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	config, err := roomchat.LoadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	app, err := roomchat.New(ctx, config)
	if err != nil {
		return err
	}
	return app.Start()
}
