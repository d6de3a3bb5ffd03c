// Package archive packages a session's retained frames into a zip.
package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/resilience"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

const manifestName = "manifest.json"

// Manifest describes the frames inside an archive.
type Manifest struct {
	SessionID string          `json:"session_id"`
	Created   time.Time       `json:"created"`
	Frames    []ManifestEntry `json:"frames"`
}

type ManifestEntry struct {
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// FileName is the archive name for a session.
func FileName(sessionID string) string {
	return "frames-" + sessionID + ".zip"
}

func frameName(i int) string {
	return fmt.Sprintf("images/frame-%d.png", i+1)
}

// Write streams the zip for frames to w.
func Write(w io.Writer, sessionID string, frames []capture.RetainedFrame) error {
	zw := zip.NewWriter(w)
	m := Manifest{SessionID: sessionID, Created: time.Now().UTC(), Frames: make([]ManifestEntry, 0, len(frames))}

	for i, f := range frames {
		name := frameName(i)
		// PNG is already compressed
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: f.Timestamp})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := fw.Write(f.Encoded); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		m.Frames = append(m.Frames, ManifestEntry{File: name, Timestamp: f.Timestamp, Width: f.Width, Height: f.Height})
	}

	mw, err := zw.Create(manifestName)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return zw.Close()
}

// Read loads the manifest of an archive on disk.
func Read(path string) (Manifest, error) {
	var m Manifest
	zr, err := zip.OpenReader(path)
	if err != nil {
		return m, apperrors.Wrap(err, apperrors.NotFound, "open archive")
	}
	defer zr.Close()

	f, err := zr.Open(manifestName)
	if err != nil {
		return m, apperrors.Wrap(err, apperrors.InvalidArgument, "archive has no manifest")
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return m, apperrors.Wrap(err, apperrors.InvalidArgument, "decode manifest")
	}
	return m, nil
}

// Writer is a capture.Sink that saves each finalized session under Dir.
type Writer struct {
	Dir   string
	Retry resilience.RetryConfig
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Retry: resilience.DefaultRetryConfig()}
}

// Path is where a session's archive is written.
func (w *Writer) Path(sessionID string) string {
	return filepath.Join(w.Dir, FileName(sessionID))
}

// Finalize writes the archive. Sessions without frames produce no file.
func (w *Writer) Finalize(ctx context.Context, sessionID string, frames []capture.RetainedFrame) error {
	if len(frames) == 0 {
		return nil
	}
	ctx, span := trace.StartSpan(trace.WithSession(ctx, sessionID), "archive_write")
	defer span.End()
	span.SetAttr("frames", len(frames))

	err := resilience.Retry(ctx, w.Retry, func() error {
		return w.writeFile(sessionID, frames)
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return apperrors.Wrap(err, apperrors.ArchiveFailed, "write archive")
	}
	trace.Logger(ctx).Info("archive written", "path", w.Path(sessionID), "frames", len(frames))
	return nil
}

func (w *Writer) writeFile(sessionID string, frames []capture.RetainedFrame) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(w.Dir, ".frames-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, sessionID, frames); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.Path(sessionID))
}
