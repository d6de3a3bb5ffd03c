//go:build linux

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

type linuxBackend struct{}

func platformBackend() backend { return linuxBackend{} }

func (linuxBackend) tool() (string, []string) {
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		return "gnome-screenshot", []string{"-f"}
	}
	if _, err := exec.LookPath("scrot"); err == nil {
		return "scrot", []string{"-o"}
	}
	return "", nil
}

func (l linuxBackend) available() bool {
	name, _ := l.tool()
	return name != ""
}

func (l linuxBackend) grab(ctx context.Context, path string) error {
	name, args := l.tool()
	if name == "" {
		return fmt.Errorf("no screenshot tool found (install gnome-screenshot or scrot)")
	}
	cmd := exec.CommandContext(ctx, name, append(args, path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return nil
}
