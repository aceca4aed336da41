// Package tools exposes the router to MCP clients.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zhouzirui/commerce-router/internal/handler/route"
	"github.com/zhouzirui/commerce-router/internal/mcp"
	"github.com/zhouzirui/commerce-router/internal/store"
)

const (
	RouteTool   = "route_commerce_message_with_profiles"
	ProfileTool = "get_user_profile_info"
)

// NewServer builds the MCP server offering the routing and profile tools.
func NewServer(svc route.Service, profiles store.ProfileStore, version string) (*mcp.Server, error) {
	return mcp.NewServer("commerce-router", version,
		mcp.Tool{
			Definition: mcp.ToolDefinition{
				Name: RouteTool,
				Description: "Route a commerce message (food ordering, restaurant reservations, rides) to the right " +
					"service, continuing the user's active session and personalizing with their stored profile.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"user_id":           map[string]any{"type": "string", "description": "Stable user identifier; derived from the message when empty"},
						"message":           map[string]any{"type": "string", "description": "The user's message"},
						"force_service":     map[string]any{"type": "string", "description": "Optional service tag to route to"},
						"force_new_session": map[string]any{"type": "boolean", "description": "Start a new session even if one is active"},
					},
					"required": []string{"message"},
				},
			},
			Handler: routeHandler(svc),
		},
		mcp.Tool{
			Definition: mcp.ToolDefinition{
				Name:        ProfileTool,
				Description: "Get user profile information for debugging/verification",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"user_id": map[string]any{"type": "string"},
					},
					"required": []string{"user_id"},
				},
			},
			Handler: profileHandler(profiles),
		},
	)
}

func routeHandler(svc route.Service) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var (
			payload route.Payload
			err     error
		)
		if payload.UserID, err = mcp.StringArg(args, "user_id"); err != nil {
			return "", err
		}
		if payload.Message, err = mcp.StringArg(args, "message"); err != nil {
			return "", err
		}
		if payload.ForceService, err = mcp.StringArg(args, "force_service"); err != nil {
			return "", err
		}
		if payload.ForceNewSession, err = mcp.BoolArg(args, "force_new_session"); err != nil {
			return "", err
		}
		if payload.Message == "" {
			return "", fmt.Errorf("%w: message is required", mcp.ErrInvalidParams)
		}

		// a dropped caller must not abandon the turn half-persisted
		reply, err := svc.Route(context.WithoutCancel(ctx), payload.Request())
		if err != nil {
			return "", fmt.Errorf("%w: %v", mcp.ErrInvalidParams, err)
		}
		// user-visible failures are ordinary text for the calling assistant to relay
		return reply.Text, nil
	}
}

func profileHandler(profiles store.ProfileStore) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		userID, err := mcp.StringArg(args, "user_id")
		if err != nil {
			return "", err
		}
		if userID == "" {
			return "", fmt.Errorf("%w: user_id is required", mcp.ErrInvalidParams)
		}
		if profiles == nil {
			return fmt.Sprintf("No profile found for user %s", userID), nil
		}

		p, err := profiles.Get(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("profile lookup failed: %w", err)
		}
		if p == nil {
			return fmt.Sprintf("No profile found for user %s", userID), nil
		}
		info, err := json.MarshalIndent(p.Summarize(), "", "  ")
		if err != nil {
			return "", err
		}
		return "Profile found: " + string(info), nil
	}
}
