// Package compose drives the Docker Compose counterpart of the stack through
// the docker CLI.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"stackctl/internal/config"
	"stackctl/pkg/logging"
)

// For mocking in tests
var execCommandContext = exec.CommandContext

// Runner runs docker compose subcommands for one compose file.
type Runner struct {
	def config.ComposeDefinition
}

// NewRunner returns a runner for def.
func NewRunner(def config.ComposeDefinition) *Runner {
	return &Runner{def: def}
}

// Configured reports whether a compose file exists to act on.
func (r *Runner) Configured() bool {
	if r == nil || r.def.File == "" {
		return false
	}
	_, err := os.Stat(r.def.File)
	return err == nil
}

// Stop stops running compose services without removing them.
func (r *Runner) Stop(ctx context.Context) error {
	return r.run(ctx, "stop")
}

// Down removes compose containers and networks, and locally built images
// when removeImages is set.
func (r *Runner) Down(ctx context.Context, removeImages bool) error {
	args := []string{"down", "--remove-orphans"}
	if removeImages {
		args = append(args, "--rmi", "local")
	}
	return r.run(ctx, args...)
}

// Args renders the docker arguments for a compose subcommand.
func (r *Runner) Args(sub ...string) []string {
	args := []string{"compose", "-f", r.def.File}
	if r.def.ProjectName != "" {
		args = append(args, "-p", r.def.ProjectName)
	}
	return append(args, sub...)
}

func (r *Runner) run(ctx context.Context, sub ...string) error {
	args := r.Args(sub...)
	logging.Info("Compose", "docker %s", strings.Join(args, " "))

	var out bytes.Buffer
	cmd := execCommandContext(ctx, "docker", args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker compose %s failed: %w: %s", sub[0], err, strings.TrimSpace(out.String()))
	}
	logging.Debug("Compose", "%s", strings.TrimSpace(out.String()))
	return nil
}
