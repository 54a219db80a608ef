package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
	"github.com/mindlogger/applet-engine/internal/domain/version"
)

// AppletService defines the applet operations needed by MCP.
type AppletService interface {
	Create(ctx context.Context, tenantID, actorID string, spec applet.Spec) (*applet.CreateResult, error)
	Update(ctx context.Context, tenantID, actorID string, id uuid.UUID, spec applet.Spec, expectedVersion string) (*applet.UpdateResult, error)
	GetLive(ctx context.Context, tenantID string, id uuid.UUID) (*applet.Applet, error)
	GetHistory(ctx context.Context, tenantID string, id uuid.UUID, ver string) (*applet.AppletHistory, error)
	ListVersions(ctx context.Context, tenantID string, id uuid.UUID) ([]applet.VersionEntry, error)
	DiffVersions(ctx context.Context, tenantID string, id uuid.UUID, versionA, versionB string) (*applet.ChangeRecord, error)
}

// Handler dispatches MCP commands.
type Handler struct {
	applets AppletService
}

// NewHandler creates a new MCP handler.
func NewHandler(applets AppletService) *Handler {
	return &Handler{applets: applets}
}

// Handle dispatches MCP requests to the applet service. actorID is
// recorded as the author of any version the call creates.
func (h *Handler) Handle(ctx context.Context, tenantID, actorID, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: ServerCapabilities{
				Tools:     &ToolsCapability{},
				Resources: &ResourcesCapability{},
			},
			ServerInfo:   ImplementationInfo{Name: serverName, Version: serverVersion},
			Instructions: serverInstructions,
		}, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		return ToolsListResult{Tools: buildToolCatalog()}, nil

	case "tools/call":
		var req ToolCallParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		args, err := json.Marshal(req.Arguments)
		if err != nil {
			return nil, err
		}
		return h.callTool(ctx, tenantID, actorID, req.Name, args)

	case "create_applet":
		var req CreateAppletParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		result, err := h.applets.Create(ctx, tenantID, actorID, req.Applet)
		if err != nil {
			return nil, mapError(err)
		}
		return CreateAppletResult{Applet: result.Applet, Version: result.Version}, nil

	case "update_applet":
		var req UpdateAppletParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := parseAppletID(req.ID)
		if err != nil {
			return nil, err
		}
		result, err := h.applets.Update(ctx, tenantID, actorID, id, req.Applet, req.ExpectedVersion)
		if err != nil {
			return nil, mapError(err)
		}
		return UpdateAppletResult{
			ID:        req.ID,
			Version:   result.Version,
			Unchanged: result.Unchanged,
			Changes:   result.Changes,
		}, nil

	case "get_applet":
		var req GetAppletParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := parseAppletID(req.ID)
		if err != nil {
			return nil, err
		}
		live, err := h.applets.GetLive(ctx, tenantID, id)
		if err != nil {
			return nil, mapError(err)
		}
		return GetAppletResult{Applet: live}, nil

	case "get_applet_version":
		var req GetAppletVersionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		iv, err := version.Decode(req.IDVersion)
		if err != nil {
			return nil, mapError(err)
		}
		hist, err := h.applets.GetHistory(ctx, tenantID, iv.ID, iv.Version)
		if err != nil {
			return nil, mapError(err)
		}
		return GetAppletVersionResult{Applet: hist}, nil

	case "list_applet_versions":
		var req ListAppletVersionsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := parseAppletID(req.ID)
		if err != nil {
			return nil, err
		}
		entries, err := h.applets.ListVersions(ctx, tenantID, id)
		if err != nil {
			return nil, mapError(err)
		}
		return ListAppletVersionsResult{ID: req.ID, Versions: entries}, nil

	case "diff_applet_versions":
		var req DiffAppletVersionsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := parseAppletID(req.ID)
		if err != nil {
			return nil, err
		}
		changes, err := h.applets.DiffVersions(ctx, tenantID, id, req.From, req.To)
		if err != nil {
			return nil, mapError(err)
		}
		return DiffAppletVersionsResult{ID: req.ID, From: req.From, To: req.To, Changes: changes}, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

// callTool runs one tool and folds domain failures into isError tool
// results, per the MCP tool calling convention. Protocol-level failures
// (undecodable payloads, unknown tools) still surface as errors.
func (h *Handler) callTool(ctx context.Context, tenantID, actorID, name string, args json.RawMessage) (any, error) {
	result, err := h.Handle(ctx, tenantID, actorID, name, args)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		payload, merr := json.Marshal(apiErr)
		if merr != nil {
			return nil, err
		}
		return ToolCallResult{
			Content: []ContentItem{{Type: "text", Text: string(payload)}},
			IsError: true,
		}, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return ToolCallResult{
		Content: []ContentItem{{Type: "text", Text: string(payload)}},
	}, nil
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, out)
}

func parseAppletID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &APIError{
			Code:         "VALIDATION",
			Message:      fmt.Sprintf("invalid applet id %q", raw),
			RecoveryHint: "Applet ids are UUIDs",
		}
	}
	return id, nil
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
