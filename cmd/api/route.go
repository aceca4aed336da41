package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/handler/route"
)

func newRouteCmd(cfg func() *config.Config) *cobra.Command {
	var (
		payload route.Payload
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Route a single message locally and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload.Message = strings.Join(args, " ")
			if strings.TrimSpace(payload.Message) == "" {
				return errors.New("message is required")
			}

			a, err := wireApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			req := payload.Request()
			reply, err := a.router.Route(cmd.Context(), req)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(route.NewResponse(req.UserID, reply))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return err
		},
	}

	cmd.Flags().StringVarP(&payload.UserID, "user", "u", "", "user id (derived from the message when empty)")
	cmd.Flags().StringVarP(&payload.ForceService, "service", "s", "", "force routing to a registered service")
	cmd.Flags().BoolVar(&payload.ForceNewSession, "new", false, "start a new session even if one is active")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full routing result as JSON")
	return cmd
}
