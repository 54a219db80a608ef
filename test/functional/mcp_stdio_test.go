package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// stdioSession wraps an MCP client session for stdio transport testing
type stdioSession struct {
	session *sdkmcp.ClientSession
	cancel  context.CancelFunc
}

func newStdioSession(t *testing.T) *stdioSession {
	t.Helper()

	// Find the binary
	binaryPath := "./bin/applet-engine"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/applet-engine"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("Server binary not found. Run 'make build' first.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"APPLET_TRANSPORT_MODE=stdio",
		"APPLET_DB_PATH=:memory:",
		"APPLET_AUTH_ENABLED=false",
	)

	transport := &sdkmcp.CommandTransport{Command: cmd}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})

	return &stdioSession{session: session, cancel: cancel}
}

func (s *stdioSession) callTool(t *testing.T, name string, args map[string]any) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool %s failed", name)
	require.False(t, result.IsError, "Tool %s returned error", name)
	require.NotEmpty(t, result.Content, "Tool %s returned no content", name)

	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			return json.RawMessage(textContent.Text)
		}
	}
	t.Fatalf("Tool %s returned no text content", name)
	return nil
}

func TestStdioFunctional_AppletLifecycle(t *testing.T) {
	s := newStdioSession(t)

	createResp := s.callTool(t, "create_applet", map[string]any{
		"applet": appletPayload(uuid.NewString(), uuid.NewString()),
	})
	var created struct {
		Applet struct {
			ID string `json:"id"`
		} `json:"applet"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(createResp, &created))
	require.Equal(t, "1.0.0", created.Version)

	getResp := s.callTool(t, "get_applet", map[string]any{"id": created.Applet.ID})
	require.Contains(t, string(getResp), "Daily Checkin")

	versionsResp := s.callTool(t, "list_applet_versions", map[string]any{"id": created.Applet.ID})
	var versions struct {
		Versions []struct {
			Version string `json:"version"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(versionsResp, &versions))
	require.Len(t, versions.Versions, 1)

	snapshotResp := s.callTool(t, "get_applet_version", map[string]any{
		"id_version": created.Applet.ID + "_1.0.0",
	})
	require.Contains(t, string(snapshotResp), created.Applet.ID+"_1.0.0")
}

func TestStdioFunctional_UpdateMintsVersion(t *testing.T) {
	s := newStdioSession(t)

	payload := appletPayload(uuid.NewString(), uuid.NewString())
	createResp := s.callTool(t, "create_applet", map[string]any{"applet": payload})
	var created struct {
		Applet struct {
			ID         string `json:"id"`
			Activities []struct {
				ID    string `json:"id"`
				Items []struct {
					ID string `json:"id"`
				} `json:"items"`
			} `json:"activities"`
			Flows []struct {
				ID    string `json:"id"`
				Items []struct {
					ID string `json:"id"`
				} `json:"items"`
			} `json:"flows"`
		} `json:"applet"`
	}
	require.NoError(t, json.Unmarshal(createResp, &created))

	for i, act := range created.Applet.Activities {
		payload["activities"].([]map[string]any)[i]["id"] = act.ID
		for j, item := range act.Items {
			payload["activities"].([]map[string]any)[i]["items"].([]map[string]any)[j]["id"] = item.ID
		}
	}
	payload["flows"].([]map[string]any)[0]["id"] = created.Applet.Flows[0].ID
	for j, fi := range created.Applet.Flows[0].Items {
		payload["flows"].([]map[string]any)[0]["items"].([]map[string]any)[j]["id"] = fi.ID
	}
	payload["display_name"] = "Renamed Checkin"

	updateResp := s.callTool(t, "update_applet", map[string]any{
		"id":               created.Applet.ID,
		"expected_version": "1.0.0",
		"applet":           payload,
	})
	var updated struct {
		Version   string `json:"version"`
		Unchanged bool   `json:"unchanged"`
	}
	require.NoError(t, json.Unmarshal(updateResp, &updated))
	require.False(t, updated.Unchanged)
	require.Equal(t, "1.0.1", updated.Version)

	diffResp := s.callTool(t, "diff_applet_versions", map[string]any{
		"id": created.Applet.ID, "from": "1.0.0", "to": "1.0.1",
	})
	require.Contains(t, string(diffResp), "Renamed Checkin")
}
