//go:build windows

package screen

import (
	"context"
	"errors"
)

type windowsBackend struct{}

func platformBackend() backend { return windowsBackend{} }

// TODO: grab the primary display with GDI BitBlt instead of reporting unavailable.
func (windowsBackend) available() bool { return false }

func (windowsBackend) grab(context.Context, string) error {
	return errors.New("windows screen capture not implemented")
}
