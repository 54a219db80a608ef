package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "create_applet",
			Description: "Create a new applet from a full definition, minting version 1.0.0",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"applet": appletSpecSchema(),
				},
				"required": []string{"applet"},
			},
		},
		{
			Name:        "update_applet",
			Description: "Replace an applet's definition, creating a new immutable version when anything changed",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Applet UUID",
					},
					"expected_version": map[string]any{
						"type":        "string",
						"description": "Version the client last saw; the update is rejected as stale if the live applet has moved on (omit to skip the check)",
					},
					"applet": appletSpecSchema(),
				},
				"required": []string{"id", "applet"},
			},
		},
		{
			Name:        "get_applet",
			Description: "Get the live (current) state of an applet",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Applet UUID",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "get_applet_version",
			Description: "Get one immutable historical snapshot of an applet by its composite id_version",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id_version": map[string]any{
						"type":        "string",
						"description": "Composite snapshot address in the form {uuid}_{version}, e.g. 64a6…_1.1.0",
					},
				},
				"required": []string{"id_version"},
			},
		},
		{
			Name:        "list_applet_versions",
			Description: "List all versions of an applet in creation order, oldest first",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Applet UUID",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "diff_applet_versions",
			Description: "Compute the semantic change record between two stored versions of an applet",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "Applet UUID",
					},
					"from": map[string]any{
						"type":        "string",
						"description": "Older version, e.g. 1.0.0",
					},
					"to": map[string]any{
						"type":        "string",
						"description": "Newer version, e.g. 1.1.0",
					},
				},
				"required": []string{"id", "from", "to"},
			},
		},
	}
}

// appletSpecSchema describes the applet definition payload shared by
// create_applet and update_applet.
func appletSpecSchema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "Full applet definition. On update it replaces the live state: entities carrying an id are updated, entities without one are created, and live entities absent from the payload are removed.",
		"properties": map[string]any{
			"display_name": map[string]any{
				"type":        "string",
				"description": "Applet display name",
			},
			"description": translatedTextSchema("Applet description"),
			"about":       translatedTextSchema("About text shown to respondents"),
			"image": map[string]any{
				"type":        "string",
				"description": "Image URL",
			},
			"watermark": map[string]any{
				"type":        "string",
				"description": "Watermark image URL",
			},
			"encryption": map[string]any{
				"type":        "object",
				"description": "Encryption bundle (public_key, prime, base, account_id). Immutable after create; omit on update to keep the current one.",
			},
			"report": map[string]any{
				"type":        "object",
				"description": "Report server settings",
			},
			"activities": map[string]any{
				"type":        "array",
				"description": "Activities in presentation order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Live activity UUID (omit to create a new activity)",
						},
						"key": map[string]any{
							"type":        "string",
							"description": "Client-chosen correlation UUID, unique within the payload; flow items reference activities by this key. Required for new activities; optional when id is set",
						},
						"name":        map[string]any{"type": "string"},
						"description": translatedTextSchema("Activity description"),
						"is_reviewable": map[string]any{
							"type":        "boolean",
							"description": "At most one activity per applet may be reviewable, and it cannot appear in a flow",
						},
						"is_hidden":            map[string]any{"type": "boolean"},
						"auto_assign":          map[string]any{"type": "boolean"},
						"is_skippable":         map[string]any{"type": "boolean"},
						"show_all_at_once":     map[string]any{"type": "boolean"},
						"response_is_editable": map[string]any{"type": "boolean"},
						"items": map[string]any{
							"type":        "array",
							"description": "Screens in presentation order",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id": map[string]any{
										"type":        "string",
										"description": "Live item UUID (omit to create a new item)",
									},
									"name": map[string]any{
										"type":        "string",
										"description": "Identifier-like name, unique within the activity",
									},
									"question": translatedTextSchema("Question text"),
									"response_type": map[string]any{
										"type":        "string",
										"description": "Response type, e.g. singleSelect, multiSelect, slider, text",
									},
									"response_values": map[string]any{
										"type":        "object",
										"description": "Type-specific response options (required for option-bearing types)",
									},
									"config": map[string]any{
										"type":        "object",
										"description": "Type-specific item configuration",
									},
									"conditional_logic": map[string]any{
										"type":        "object",
										"description": "Visibility rules; conditions reference sibling items by name",
										"properties": map[string]any{
											"match": map[string]any{
												"type": "string",
												"enum": []string{"any", "all"},
											},
											"conditions": map[string]any{
												"type": "array",
												"items": map[string]any{
													"type": "object",
													"properties": map[string]any{
														"item_name": map[string]any{"type": "string"},
														"type":      map[string]any{"type": "string"},
														"payload":   map[string]any{"type": "object"},
													},
													"required": []string{"item_name", "type"},
												},
											},
										},
										"required": []string{"match", "conditions"},
									},
								},
								"required": []string{"name", "question", "response_type", "config"},
							},
						},
					},
					"required": []string{"name", "items"},
				},
			},
			"flows": map[string]any{
				"type":        "array",
				"description": "Activity flows in presentation order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Live flow UUID (omit to create a new flow)",
						},
						"name":                          map[string]any{"type": "string"},
						"description":                   translatedTextSchema("Flow description"),
						"is_single_report":              map[string]any{"type": "boolean"},
						"hide_badge":                    map[string]any{"type": "boolean"},
						"report_included_activity_name": map[string]any{"type": "string"},
						"report_included_item_name":     map[string]any{"type": "string"},
						"items": map[string]any{
							"type":        "array",
							"description": "Activity steps in order",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id": map[string]any{
										"type":        "string",
										"description": "Live flow item UUID (omit to create a new step)",
									},
									"activity_key": map[string]any{
										"type":        "string",
										"description": "Key of an activity in this payload (set exactly one of activity_key / activity_id)",
									},
									"activity_id": map[string]any{
										"type":        "string",
										"description": "Live UUID of an activity in this payload",
									},
								},
							},
						},
					},
					"required": []string{"name", "items"},
				},
			},
		},
		"required": []string{"display_name", "encryption", "activities"},
	}
}

func translatedTextSchema(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description + " keyed by language code, e.g. {\"en\": \"...\"}",
		"additionalProperties": map[string]any{
			"type": "string",
		},
	}
}

// registerTools registers the tool catalog on the SDK server. The SDK
// wants *jsonschema.Schema; the catalog keeps the plain-map form so the
// JSON-RPC transport can serve tools/list without the SDK.
func registerTools(server *sdkmcp.Server, h *Handler) {
	for _, def := range buildToolCatalog() {
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: compileSchema(def.InputSchema),
		}, sdkToolHandler(h, def.Name))
	}
}

func sdkToolHandler(h *Handler, name string) sdkmcp.ToolHandler {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		result, err := h.callTool(ctx, getTenantID(ctx), getActorID(ctx), name, args)
		if err != nil {
			return nil, err
		}
		call, ok := result.(ToolCallResult)
		if !ok {
			return nil, fmt.Errorf("unexpected tool result type %T", result)
		}
		out := &sdkmcp.CallToolResult{IsError: call.IsError}
		for _, item := range call.Content {
			out.Content = append(out.Content, &sdkmcp.TextContent{Text: item.Text})
		}
		return out, nil
	}
}

func compileSchema(m map[string]any) *jsonschema.Schema {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("marshal tool schema: %v", err))
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("compile tool schema: %v", err))
	}
	return &schema
}
