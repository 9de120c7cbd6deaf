package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"escrowd/services/admin"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type clientFlags struct {
	apiBaseURL string
	caller     string
	adminToken string
}

func (f *clientFlags) client() (*admin.Client, error) {
	token := f.adminToken
	if token == "" {
		token = os.Getenv("ESCROW_ADMIN_TOKEN")
	}
	return admin.NewClient(f.apiBaseURL, f.caller, token)
}

func newRootCommand() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Operator utility for the escrowd payment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.apiBaseURL, "api", "http://localhost:8080", "Base URL of the escrowd API")
	cmd.PersistentFlags().StringVar(&flags.caller, "caller", "", "Caller identity for the request")
	cmd.PersistentFlags().StringVar(&flags.adminToken, "admin-token", "", "Admin bearer token (defaults to ESCROW_ADMIN_TOKEN)")
	_ = cmd.MarkPersistentFlagRequired("caller")

	cmd.AddCommand(newSessionsCommand(flags))
	cmd.AddCommand(newRefundsCommand(flags))
	cmd.AddCommand(newAuditCommand(flags))
	return cmd
}

func newSessionsCommand(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session read operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var id string
	get := &cobra.Command{
		Use:   "get",
		Short: "Fetch one session by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.GetSession(ctx, id)
			})
		},
	}
	get.Flags().StringVar(&id, "id", "", "Session id (64 hex characters)")
	_ = get.MarkFlagRequired("id")

	var participant string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions for a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.ListSessions(ctx, participant)
			})
		},
	}
	list.Flags().StringVar(&participant, "participant", "", "Payer or payee identity")
	_ = list.MarkFlagRequired("participant")

	var auditID string
	auditTrail := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.SessionAudit(ctx, auditID)
			})
		},
	}
	auditTrail.Flags().StringVar(&auditID, "id", "", "Session id (64 hex characters)")
	_ = auditTrail.MarkFlagRequired("id")

	cmd.AddCommand(get, list, auditTrail)
	return cmd
}

func newRefundsCommand(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refunds",
		Short: "Refund operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var triggerID string
	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Fire the universal refund trigger for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.TriggerRefund(ctx, triggerID)
			})
		},
	}
	trigger.Flags().StringVar(&triggerID, "id", "", "Session id (64 hex characters)")
	_ = trigger.MarkFlagRequired("id")

	var (
		forceID     string
		forceReason string
	)
	force := &cobra.Command{
		Use:   "force",
		Short: "Refund the remaining escrow of one session (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.ForceRefund(ctx, forceID, forceReason)
			})
		},
	}
	force.Flags().StringVar(&forceID, "id", "", "Session id (64 hex characters)")
	force.Flags().StringVar(&forceReason, "reason", "", "Reason recorded in the audit trail")
	_ = force.MarkFlagRequired("id")
	_ = force.MarkFlagRequired("reason")

	var (
		batchIDs    []string
		batchReason string
	)
	batch := &cobra.Command{
		Use:   "batch",
		Short: "Refund a batch of sessions (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.BatchRefund(ctx, batchIDs, batchReason)
			})
		},
	}
	batch.Flags().StringSliceVar(&batchIDs, "ids", nil, "Comma-separated session ids")
	batch.Flags().StringVar(&batchReason, "reason", "", "Reason recorded in the audit trail")
	_ = batch.MarkFlagRequired("ids")
	_ = batch.MarkFlagRequired("reason")

	cmd.AddCommand(trigger, force, batch)
	return cmd
}

func newAuditCommand(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit archive operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var (
		fromRaw string
		toRaw   string
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Export a signed audit archive and print the download URL (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, fromRaw)
			if err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}
			to := time.Now().UTC()
			if toRaw != "" {
				to, err = time.Parse(time.RFC3339, toRaw)
				if err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
			}
			return invoke(cmd.Context(), flags, func(ctx context.Context, c *admin.Client) (json.RawMessage, error) {
				return c.ExportAudit(ctx, from, to)
			})
		},
	}
	export.Flags().StringVar(&fromRaw, "from", "", "Window start (RFC 3339)")
	export.Flags().StringVar(&toRaw, "to", "", "Window end (RFC 3339, defaults to now)")
	_ = export.MarkFlagRequired("from")

	cmd.AddCommand(export)
	return cmd
}

func invoke(ctx context.Context, flags *clientFlags, fn func(context.Context, *admin.Client) (json.RawMessage, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := flags.client()
	if err != nil {
		return err
	}

	payload, err := fn(ctx, client)
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(payload, &pretty); err != nil {
		fmt.Println(string(payload))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
