package integration_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func serverBinary(t *testing.T) string {
	t.Helper()
	for _, path := range []string{"./bin/applet-engine", "../../bin/applet-engine"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("Server binary not found. Run 'make build' first.")
	return ""
}

// TestStdioProtocolCompliance verifies the server works correctly over stdio
// transport using the official MCP SDK client. This catches protocol issues
// that shell-based tests might miss.
func TestStdioProtocolCompliance(t *testing.T) {
	binaryPath := serverBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"APPLET_TRANSPORT_MODE=stdio",
		"APPLET_DB_PATH=:memory:",
		"APPLET_AUTH_ENABLED=false",
	)

	transport := &sdkmcp.CommandTransport{
		Command: cmd,
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err, "Failed to connect to server")
	defer session.Close()

	t.Run("ServerInfo", func(t *testing.T) {
		initResult := session.InitializeResult()
		require.NotNil(t, initResult)
		require.NotNil(t, initResult.ServerInfo)
		require.Equal(t, "applet-engine", initResult.ServerInfo.Name)
		require.Equal(t, "0.1.0", initResult.ServerInfo.Version)
	})

	t.Run("ListTools", func(t *testing.T) {
		tools, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "tools/list failed")

		toolNames := make([]string, 0, len(tools.Tools))
		for _, tool := range tools.Tools {
			toolNames = append(toolNames, tool.Name)
		}

		require.ElementsMatch(t, []string{
			"create_applet",
			"update_applet",
			"get_applet",
			"get_applet_version",
			"list_applet_versions",
			"diff_applet_versions",
		}, toolNames)
	})

	t.Run("CallCreateApplet", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name: "create_applet",
			Arguments: map[string]any{
				"display_name": "Protocol Check",
				"encryption": map[string]any{
					"public_key": "pk",
					"prime":      "17",
					"base":       "3",
					"account_id": "acct1",
				},
				"activities": []map[string]any{
					{
						"name": "Survey",
						"items": []map[string]any{
							{
								"name":          "mood",
								"question":      map[string]any{"en": "How are you?"},
								"response_type": "singleSelect",
								"response_values": map[string]any{
									"options": []map[string]any{
										{"text": "good", "value": 1},
										{"text": "bad", "value": 2},
									},
								},
								"config": map[string]any{},
							},
						},
					},
				},
			},
		})
		require.NoError(t, err, "tools/call create_applet failed")
		require.False(t, result.IsError, "create_applet returned error: %v", result)
		require.NotEmpty(t, result.Content, "create_applet returned no content")

		hasText := false
		for _, content := range result.Content {
			if textContent, ok := content.(*sdkmcp.TextContent); ok {
				hasText = true
				require.Contains(t, textContent.Text, "1.0.0")
				require.Contains(t, textContent.Text, "Protocol Check")
			}
		}
		require.True(t, hasText, "create_applet should return text content")
	})

	t.Run("CallGetAppletMissing", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name: "get_applet",
			Arguments: map[string]any{
				"applet_id": "2d6f8a1e-0f4b-4f7c-9f3a-111111111111",
			},
		})
		require.NoError(t, err, "tools/call get_applet failed")
		require.True(t, result.IsError, "expected missing applet to surface as a tool error")

		for _, content := range result.Content {
			if textContent, ok := content.(*sdkmcp.TextContent); ok {
				require.Contains(t, textContent.Text, "APPLET_NOT_FOUND")
			}
		}
	})
}

// TestStdioProtocol_StdoutHygiene verifies that the server doesn't write
// anything to stdout except valid JSON-RPC messages.
func TestStdioProtocol_StdoutHygiene(t *testing.T) {
	binaryPath := serverBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"APPLET_TRANSPORT_MODE=stdio",
		"APPLET_DB_PATH=:memory:",
		"APPLET_AUTH_ENABLED=false",
	)

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)

	stderr, err := cmd.StderrPipe()
	require.NoError(t, err)

	err = cmd.Start()
	require.NoError(t, err)

	initReq := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}},"id":1}`
	_, err = stdin.Write([]byte(initReq + "\n"))
	require.NoError(t, err)

	done := make(chan struct{})
	var stdoutBytes, stderrBytes []byte

	go func() {
		stdoutBytes, _ = readWithTimeout(stdout, 2*time.Second)
		stderrBytes, _ = readWithTimeout(stderr, 2*time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("Timeout waiting for server response")
	}

	stdin.Close()
	cmd.Process.Kill()
	cmd.Wait()

	require.NotEmpty(t, stdoutBytes, "Server produced no stdout output")
	require.True(t, stdoutBytes[0] == '{', "First character of stdout should be '{', got: %q", string(stdoutBytes[:min(50, len(stdoutBytes))]))

	// Logs should be on stderr (if any)
	t.Logf("Stderr output (logs): %s", string(stderrBytes))
}

func readWithTimeout(r interface{ Read([]byte) (int, error) }, timeout time.Duration) ([]byte, error) {
	result := make([]byte, 0, 4096)
	buf := make([]byte, 1024)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		done := make(chan struct{})
		var n int
		var err error
		go func() {
			n, err = r.Read(buf)
			close(done)
		}()

		select {
		case <-done:
			if n > 0 {
				result = append(result, buf[:n]...)
			}
			if err != nil {
				return result, err
			}
		case <-time.After(100 * time.Millisecond):
			if len(result) > 0 {
				return result, nil
			}
		}
	}
	return result, nil
}
