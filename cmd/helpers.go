package cmd

import (
	"fmt"
	"os/exec"
	"strings"
)

var lookPath = exec.LookPath

// checkToolStatus returns a string indicating the status of required tools.
func checkToolStatus() string {
	var status strings.Builder
	status.WriteString("\nPrerequisites:\n")

	// Check for Docker or Podman
	if _, err := lookPath("docker"); err == nil {
		status.WriteString("  [OK] docker\n")
	} else if _, err := lookPath("podman"); err == nil {
		status.WriteString("  [OK] podman\n")
	} else {
		status.WriteString("  [MISSING] docker or podman (required)\n")
	}

	if path, err := lookPath("syft"); err == nil {
		fmt.Fprintf(&status, "  [OK] syft (%s, used with --syft)\n", path)
	} else {
		status.WriteString("  [MISSING] syft (optional, needed for --syft)\n")
	}
	return status.String()
}
