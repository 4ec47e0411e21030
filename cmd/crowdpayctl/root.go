package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/mmynk/crowdpay/pkg/escrowv1"
)

const defaultTimeout = 10 * time.Second

// clientOptions are the flags shared by every RPC command.
type clientOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "crowdpayctl",
		Short:         "Command-line client for the crowdpay escrow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("CROWDPAY_SERVER", "http://localhost:8080"), "escrow service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CROWDPAY_TOKEN"), "bearer token identifying the caller")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-call timeout")

	root.AddCommand(
		newTokenCmd(),
		newCreateCmd(opts),
		newContributeCmd(opts),
		newSettleCmd(opts),
		newShowCmd(opts),
		newParticipantsCmd(opts),
		newGroupsCmd(opts),
		newBalanceCmd(opts),
		newArchiveCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *clientOptions) client() *escrowv1.EscrowServiceClient {
	return escrowv1.NewEscrowServiceClient(http.DefaultClient, o.server)
}

func (o *clientOptions) callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// request wraps msg with the caller's bearer token.
func request[T any](o *clientOptions, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if o.token != "" {
		req.Header().Set("Authorization", "Bearer "+o.token)
	}
	return req
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError adds the failure kind to RPC errors.
func describeError(err error) error {
	if kind := escrowv1.ErrorKind(err); kind != "" {
		return fmt.Errorf("%w (%s)", err, kind)
	}
	return err
}
