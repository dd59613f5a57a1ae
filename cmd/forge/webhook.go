package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
)

func newWebhookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "webhook",
		Aliases: []string{"webhooks"},
		Short:   "Manage webhook subscriptions",
	}

	var createReq schemas.WebhookCreateRequest
	var inactive bool
	create := &cobra.Command{
		Use:   "create <url>",
		Short: "Subscribe a URL to project events",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			createReq.URL = args[0]
			if inactive {
				active := false
				createReq.IsActive = &active
			}
			hook, err := a.client.CreateWebhook(cmd.Context(), createReq)
			if err != nil {
				return err
			}
			return a.printer.Webhooks([]store.Webhook{*hook})
		}),
	}
	create.Flags().StringVar(&createReq.ProjectID, "project", "", "project id")
	create.Flags().StringVar(&createReq.Secret, "secret", "", "HMAC signing secret")
	create.Flags().StringSliceVar(&createReq.Events, "event", nil, "event to subscribe to (repeatable, default: all)")
	create.Flags().BoolVar(&inactive, "inactive", false, "create the webhook disabled")
	_ = create.MarkFlagRequired("project")
	_ = create.MarkFlagRequired("secret")
	cmd.AddCommand(create)

	var listProject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a project's webhooks",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			hooks, err := a.client.ListWebhooks(cmd.Context(), listProject)
			if err != nil {
				return err
			}
			return a.printer.Webhooks(hooks)
		}),
	}
	list.Flags().StringVar(&listProject, "project", "", "project id")
	_ = list.MarkFlagRequired("project")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:     "show <webhook-id>",
		Aliases: []string{"get"},
		Short:   "Show a webhook",
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			hook, err := a.client.GetWebhook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Webhooks([]store.Webhook{*hook})
		}),
	})

	var url, secret string
	var events []string
	var active bool
	update := &cobra.Command{
		Use:   "update <webhook-id>",
		Short: "Change a webhook's URL, secret, events or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req := schemas.WebhookUpdateRequest{
				URL:    changed(cmd, "url-to", url),
				Secret: changed(cmd, "secret", secret),
			}
			if cmd.Flags().Changed("event") {
				req.Events = &events
			}
			if cmd.Flags().Changed("active") {
				req.IsActive = &active
			}
			hook, err := a.client.UpdateWebhook(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.printer.Webhooks([]store.Webhook{*hook})
		}),
	}
	update.Flags().StringVar(&url, "url-to", "", "new target URL")
	update.Flags().StringVar(&secret, "secret", "", "new signing secret")
	update.Flags().StringSliceVar(&events, "event", nil, "replace the subscribed events")
	update.Flags().BoolVar(&active, "active", true, "enable or disable deliveries")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <webhook-id>",
		Short: "Delete a webhook and its deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteWebhook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	})

	var limit int
	deliveries := &cobra.Command{
		Use:   "deliveries <webhook-id>",
		Short: "List recent deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListDeliveries(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return a.printer.Deliveries(list)
		}),
	}
	deliveries.Flags().IntVar(&limit, "limit", 0, "maximum number of deliveries")
	cmd.AddCommand(deliveries)

	cmd.AddCommand(&cobra.Command{
		Use:   "redeliver <webhook-id> <delivery-id>",
		Short: "Queue a failed delivery for another attempt",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			delivery, err := a.client.Redeliver(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.printer.Deliveries([]store.Delivery{*delivery})
		}),
	})
	return cmd
}
