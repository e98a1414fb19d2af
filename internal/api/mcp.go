package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/temlaunch/temlaunch/internal/console"
	"github.com/temlaunch/temlaunch/internal/profile"
	"github.com/temlaunch/temlaunch/internal/storage"
	"github.com/temlaunch/temlaunch/internal/updates"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Launcher GameLauncher
	Console  *console.Console
	ModNames []string
	Sort     profile.SortOption
	Version  string
	Logger   *slog.Logger
}

// NewMCPServer creates an MCP server with the launcher tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := server.NewMCPServer(
		"temlaunch",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("temlaunch: manage TRON Evolution launch profiles, start the game and keep mods up to date."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_profiles",
			mcp.WithDescription("List launch profiles with their window and mod settings."),
			mcp.WithString("sort", mcp.Description("createdAt-asc, createdAt-desc, name-asc or name-desc")),
		),
		mcpListProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("launch_profile",
			mcp.WithDescription("Apply a profile to GridEngine.ini, sync its mods and start the game."),
			mcp.WithString("profile", mcp.Description("Profile name or ID; the default profile when omitted")),
		),
		mcpLaunchProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("console_execute",
			mcp.WithDescription("Run a launcher console command such as user-agent, game, config, mods or version."),
			mcp.WithString("command", mcp.Description("Command line to execute"), mcp.Required()),
		),
		mcpConsoleExecute(deps),
	)

	s.AddTool(
		mcp.NewTool("check_mod_updates",
			mcp.WithDescription("Queue a release check for every configured mod."),
		),
		mcpCheckModUpdates(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"launcher://profiles",
			"Launch Profiles",
			mcp.WithResourceDescription("All launch profiles as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfiles(deps),
	)

	return s
}

func mcpListProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sortOpt := deps.Sort
		if s := req.GetString("sort", ""); s != "" {
			opt, err := profile.ParseSort(s)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			sortOpt = opt
		}

		profiles, err := deps.Profiles.List(sortOpt)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list profiles: %v", err)), nil
		}
		if len(profiles) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(profiles)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profiles: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLaunchProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := resolveProfile(deps.Profiles, req.GetString("profile", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := startLaunch(deps.Launcher, p, deps.Logger); err != nil {
			return mcpError(fmt.Sprintf("cannot launch: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Launching profile %s", p.Name)), nil
	}
}

func mcpConsoleExecute(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		command, err := req.RequireString("command")
		if err != nil {
			return mcpError("command is required"), nil
		}
		return mcpText(deps.Console.Execute(command)), nil
	}
}

func mcpCheckModUpdates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if len(deps.ModNames) == 0 {
			return mcpError("no mod repositories configured"), nil
		}
		ids, err := updates.Enqueue(deps.Store, deps.ModNames...)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue updates: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued update checks for %s (%d jobs)", strings.Join(deps.ModNames, ", "), len(ids))), nil
	}
}

func mcpResourceProfiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profiles, err := deps.Profiles.List(deps.Sort)
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}
		if profiles == nil {
			profiles = []profile.Profile{}
		}

		b, err := json.Marshal(profiles)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// resolveProfile finds a profile by name, then by ID. An empty ref selects
// the default profile.
func resolveProfile(m *profile.Manager, ref string) (profile.Profile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		p, err := m.Default()
		if errors.Is(err, storage.ErrNotFound) {
			return profile.Profile{}, errors.New("no default profile")
		}
		return p, err
	}
	p, err := m.GetByName(ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return profile.Profile{}, err
	}
	p, err = m.Get(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return profile.Profile{}, fmt.Errorf("profile %q not found", ref)
	}
	return p, err
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
