package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mmynk/crowdpay/internal/auth"
	"github.com/mmynk/crowdpay/pkg/escrowv1"
)

// newTokenCmd mints a token locally with the server's shared secret.
func newTokenCmd() *cobra.Command {
	var secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Mint a bearer token for an identity",
		Long: `Sign a token for identity with the server's JWT secret.

The identity owns a wallet balance: the organizer receives settlements
there and "balance" without a group reads it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or CROWDPAY_JWT_SECRET is required")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("CROWDPAY_JWT_SECRET"), "JWT signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newCreateCmd(o *clientOptions) *cobra.Command {
	var name string
	var total uint64
	var participants uint32

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group with the caller as organizer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			resp, err := o.client().CreateGroup(ctx, request(o, &escrowv1.CreateGroupRequest{
				Name:             name,
				TotalAmount:      total,
				ParticipantCount: participants,
			}))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg.Group)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().Uint64Var(&total, "total", 0, "funding target")
	cmd.Flags().Uint32Var(&participants, "participants", 0, "number of contributions expected")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("participants")
	return cmd
}

func newContributeCmd(o *clientOptions) *cobra.Command {
	var amount uint64
	var key string

	cmd := &cobra.Command{
		Use:   "contribute <group-id>",
		Short: "Contribute to a group as the caller",
		Long: `Contribute amount to a group.

Every call carries an Idempotency-Key. Pass --key to retry a call whose
outcome is unknown; the server then returns the original receipt instead
of recording a second contribution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			if key == "" {
				key = uuid.New().String()
			}
			req := request(o, &escrowv1.ContributeRequest{GroupId: args[0], Amount: amount})
			req.Header().Set(escrowv1.IdempotencyKeyHeader, key)

			resp, err := o.client().Contribute(ctx, req)
			if err != nil {
				return fmt.Errorf("%w (retry with --key %s)", describeError(err), key)
			}
			if resp.Header().Get(escrowv1.ReplayedHeader) == "true" {
				fmt.Fprintln(cmd.ErrOrStderr(), "replayed earlier result")
			}
			return printJSON(cmd, resp.Msg.Participant)
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to contribute")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key (generated when empty)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newSettleCmd(o *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <group-id>",
		Short: "Pay a completed group out to its organizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			resp, err := o.client().SettlePayment(ctx, request(o, &escrowv1.SettlePaymentRequest{GroupId: args[0]}))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg.Transfer)
		},
	}
}

func newShowCmd(o *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show a group and its settlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			resp, err := o.client().GetGroup(ctx, request(o, &escrowv1.GetGroupRequest{GroupId: args[0]}))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg)
		},
	}
}

func newParticipantsCmd(o *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "participants <group-id>",
		Short: "List a group's contribution receipts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			resp, err := o.client().ListParticipants(ctx, request(o, &escrowv1.ListParticipantsRequest{GroupId: args[0]}))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg.Participants)
		},
	}
}

func newGroupsCmd(o *clientOptions) *cobra.Command {
	var organizer, contributor string

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List groups, the caller's own by default",
		Long: `List groups filtered by organizer and contributor, newest first.

Without filters the caller's groups are listed: those they organize and
those they have contributed to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			resp, err := o.client().ListGroups(ctx, request(o, &escrowv1.ListGroupsRequest{
				Organizer:   organizer,
				Contributor: contributor,
			}))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg.Groups)
		},
	}
	cmd.Flags().StringVar(&organizer, "organizer", "", "only groups created by this identity")
	cmd.Flags().StringVar(&contributor, "contributor", "", "only groups this identity contributed to")
	return cmd
}

func newBalanceCmd(o *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [group-id]",
		Short: "Show the caller's wallet balance, or a group's escrow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.callContext(cmd)
			defer cancel()

			msg := &escrowv1.GetBalanceRequest{}
			if len(args) == 1 {
				msg.GroupId = args[0]
			}
			resp, err := o.client().GetBalance(ctx, request(o, msg))
			if err != nil {
				return describeError(err)
			}
			return printJSON(cmd, resp.Msg)
		},
	}
}
