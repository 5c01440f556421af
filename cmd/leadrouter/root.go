package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/lead-router/pkg/config"
	"go.uber.org/zap"
)

type rootOptions struct {
	cfgPath string
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCMD().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCMD() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "leadrouter",
		Short:        "Route inbound leads from WhatsApp, email and Instagram to the sales team",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "config file (YAML); environment variables override it")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "development logging")

	root.AddCommand(serveCMD(opts), migrateCMD(opts), vendorsCMD(opts))
	return root
}

// setup loads the configuration and builds the logger every command uses.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if o.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.LoadConfig(o.cfgPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err), zap.String("path", o.cfgPath))
		return nil, nil, err
	}
	return cfg, logger, nil
}
