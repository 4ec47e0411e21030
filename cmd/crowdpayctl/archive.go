package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/crowdpay/internal/archive"
	s3archive "github.com/mmynk/crowdpay/internal/archive/s3"
	"github.com/mmynk/crowdpay/internal/config"
	"github.com/mmynk/crowdpay/internal/record"
)

func newArchiveCmd(o *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read settled groups back from the archive",
	}
	cmd.AddCommand(newArchiveShowCmd(o))
	return cmd
}

func newArchiveShowCmd(o *clientOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show [group-id]",
		Short: "Decode an archived settlement bundle",
		Long: `Print the group, receipts and transfer archived when a group settled.

The bundle is fetched from the bucket named by the server's CROWDPAY_S3_*
settings, or read from a local copy with --file.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var bundle *archive.Bundle
			var err error
			if file != "" {
				bundle, err = readBundle(file)
			} else {
				ctx, cancel := o.callContext(cmd)
				defer cancel()
				bundle, err = fetchBundle(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, bundle)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "decode a downloaded bundle instead of fetching it")
	return cmd
}

func readBundle(path string) (*archive.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bundle, err := record.UnmarshalBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bundle, nil
}

func fetchBundle(ctx context.Context, groupID string) (*archive.Bundle, error) {
	cfg, err := config.LoadS3()
	if err != nil {
		return nil, err
	}

	a, err := s3archive.New(ctx, s3archive.ClientConfig{
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Bucket:         cfg.Bucket,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		ForcePathStyle: cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, groupID)
}
