package main

import (
	"context"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/userdeck/userdeck"
	"github.com/userdeck/userdeck/internal/config"
	"github.com/userdeck/userdeck/pkg/export"
)

func serveCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console server",
		Long: `Run the console server.

Loads the first page of users from the remote service, opens the live
feed, and serves the console API until interrupted.

Examples:
  userdeck serve
  userdeck serve --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts, err := exportOptions(ctx, cfg)
			if err != nil {
				return err
			}
			app, err := userdeck.New(cfg, opts...)
			if err != nil {
				return err
			}

			info("serving on %s", cfg.Server.ListenAddr)
			return app.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default from userdeck.json)")

	return cmd
}

// exportOptions wires the S3 exporter when a bucket is configured.
func exportOptions(ctx context.Context, cfg *config.Config) ([]userdeck.Option, error) {
	if cfg.Export.Bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	store := export.NewS3Store(client, s3.NewPresignClient(client), cfg.Export.Bucket, cfg.Export.Prefix)

	return []userdeck.Option{
		userdeck.WithObjectStore(store),
	}, nil
}
