// Package main provides the container entrypoint
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func main() {
	runType := getEnvWithDefault("RUN_TYPE", "rest")
	workersCount := getEnvWithDefault("WORKERS_COUNT", "1")

	switch runType {
	case "rest":
		var args []string
		if os.Getenv("AUTO_MIGRATE") == "true" {
			args = append(args, "--auto-migrate")
		}
		execBinary("/app/bin/rest", args...)
	case "relay":
		execBinary("/app/bin/worker", "relay")
	case "reactor":
		execBinary("/app/bin/worker", "--workers", workersCount, "reactor")
	case "migrate":
		execBinary("/app/bin/db", "migrate")
	default:
		fmt.Fprintf(os.Stderr, "Invalid RUN_TYPE %q. Must be one of 'rest', 'relay', 'reactor' or 'migrate'\n", runType)
		fmt.Fprintf(os.Stderr, "Usage: RUN_TYPE=reactor WORKERS_COUNT=<count>\n")
		os.Exit(1)
	}
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// execBinary runs the binary with the process's standard streams.
func execBinary(path string, args ...string) {
	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute %s: %v\n", filepath.Base(path), err)
		os.Exit(1)
	}
}
