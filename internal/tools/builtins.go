// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxFileReadSize bounds file content returned to the model.
const maxFileReadSize = 256 * 1024

// RegisterBuiltins adds the built-in tools to a registry. Root confines
// the file tools; an empty root disables them.
func RegisterBuiltins(r *Registry, root string) error {
	if err := r.Register(currentTimeTool()); err != nil {
		return err
	}
	if root == "" {
		return nil
	}
	if err := r.Register(readFileTool(root)); err != nil {
		return err
	}
	return r.Register(listDirTool(root))
}

func currentTimeTool() Tool {
	return Tool{
		Name:        "current_time",
		Description: "Returns the current local date and time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			return time.Now().Format(time.RFC1123), nil
		},
	}
}

func readFileTool(root string) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Reads a text file relative to the working directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative path of the file to read",
				},
			},
			"required": []string{"path"},
		},
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			path, err := resolveWithin(root, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			if len(data) > maxFileReadSize {
				return string(data[:maxFileReadSize]) + "\n[truncated]", nil
			}
			return string(data), nil
		},
	}
}

func listDirTool(root string) Tool {
	return Tool{
		Name:        "list_dir",
		Description: "Lists the entries of a directory relative to the working directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative directory path (default: .)",
				},
			},
		},
		Handler: func(ctx context.Context, inv Invocation, args map[string]any) (string, error) {
			rel := stringArg(args, "path")
			if rel == "" {
				rel = "."
			}
			path, err := resolveWithin(root, rel)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	}
}

// resolveWithin joins rel under root and rejects escapes.
// SECURITY: File tools must never read outside their root.
func resolveWithin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Clean(filepath.Join(absRoot, rel))
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the working directory")
	}
	return joined, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
