package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/weft-ai/weft/internal/tool"
)

// registerBuiltins installs the stock tools available to tool agents.
func registerBuiltins(reg *tool.Registry) error {
	specs := []*tool.Spec{
		{
			ID:          "echo",
			Name:        "echo",
			Description: "Return the given text unchanged",
			Category:    "utility",
			Parameters: map[string]tool.ParamSpec{
				"text": {Type: "string", Description: "Text to return"},
			},
			Required: []string{"text"},
			Builtin: func(_ context.Context, params map[string]any) (any, error) {
				text, _ := params["text"].(string)
				return text, nil
			},
		},
		{
			ID:          "read_file",
			Name:        "read_file",
			Description: "Read a file from the local filesystem",
			Category:    "filesystem",
			Parameters: map[string]tool.ParamSpec{
				"path": {Type: "string", Description: "Path of the file to read"},
			},
			Required: []string{"path"},
			Builtin: func(_ context.Context, params map[string]any) (any, error) {
				path, _ := params["path"].(string)
				if path == "" {
					return nil, fmt.Errorf("path is required")
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, err
				}
				return string(data), nil
			},
		},
		{
			ID:          "write_file",
			Name:        "write_file",
			Description: "Write content to a file, creating it if needed",
			Category:    "filesystem",
			Parameters: map[string]tool.ParamSpec{
				"path":    {Type: "string", Description: "Path of the file to write"},
				"content": {Type: "string", Description: "Content to write"},
			},
			Required: []string{"path", "content"},
			Builtin: func(_ context.Context, params map[string]any) (any, error) {
				path, _ := params["path"].(string)
				content, _ := params["content"].(string)
				if path == "" {
					return nil, fmt.Errorf("path is required")
				}
				if err := os.WriteFile(path, []byte(content), 0644); err != nil {
					return nil, err
				}
				return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
			},
		},
		{
			ID:          "shell",
			Name:        "shell",
			Description: "Run a shell command and return its combined output",
			Category:    "shell",
			Parameters: map[string]tool.ParamSpec{
				"command": {Type: "string", Description: "Command to run"},
			},
			Required:         []string{"command"},
			RequiresRealtime: true,
			Builtin: func(ctx context.Context, params map[string]any) (any, error) {
				command, _ := params["command"].(string)
				if strings.TrimSpace(command) == "" {
					return nil, fmt.Errorf("command is required")
				}
				out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
				if err != nil {
					return nil, fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
				}
				return strings.TrimRight(string(out), "\n"), nil
			},
		},
		{
			ID:          "current_time",
			Name:        "current_time",
			Description: "Return the current time in RFC 3339 format",
			Category:    "realtime",
			Builtin: func(_ context.Context, _ map[string]any) (any, error) {
				return time.Now().Format(time.RFC3339), nil
			},
		},
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
