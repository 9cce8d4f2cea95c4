package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/userdeck/userdeck/internal/config"
	"github.com/userdeck/userdeck/pkg/api"
	"github.com/userdeck/userdeck/pkg/export"
	"github.com/userdeck/userdeck/pkg/rbac"
)

func exportCmd() *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Produce a GDPR subject-access archive",
		Long: `Produce a GDPR subject-access archive for one user.

The archive contains the user's record and resolved permissions as
JSON, uploaded to the configured S3 bucket. The command prints the
object key and a presigned download URL.

Examples:
  userdeck export u42
  userdeck export --bucket compliance-archives u42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			if bucket != "" {
				cfg.Export.Bucket = bucket
			}
			if cfg.Export.Bucket == "" {
				return fmt.Errorf("no export bucket configured; set export.bucket or pass --bucket")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return err
			}
			client := s3.NewFromConfig(awsCfg)
			objects := export.NewS3Store(client, s3.NewPresignClient(client), cfg.Export.Bucket, cfg.Export.Prefix)

			exporter := export.New(api.New(cfg.API.BaseURL), objects, rbac.Defaults(), nil, nil)
			res, err := exporter.Export(ctx, args[0])
			if err != nil {
				return err
			}

			success("archive stored at %s", res.Key)
			if res.URL != "" {
				info("download: %s", res.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "S3 bucket (default from userdeck.json)")

	return cmd
}
