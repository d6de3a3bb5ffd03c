//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

type darwinBackend struct{}

func platformBackend() backend { return darwinBackend{} }

func (darwinBackend) available() bool {
	_, err := exec.LookPath("screencapture")
	return err == nil
}

func (darwinBackend) grab(ctx context.Context, path string) error {
	// -x: no sound, -t png: lossless, -m: main display only
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-m", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("screencapture: %w: %s", err, stderr.String())
	}
	return nil
}
