// Command slidecapture is the offline companion to the capture server.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/schollz/progressbar/v3"

	"github.com/GriffinCanCode/slidecapture/internal/archive"
	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/catalog"
	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	"github.com/GriffinCanCode/slidecapture/internal/health"
	"github.com/GriffinCanCode/slidecapture/internal/replay"
)

var Version = "dev"

type CLI struct {
	Dedup    DedupCmd    `cmd:"" help:"Run still images through the dedup engine and archive the distinct ones"`
	Crop     CropCmd     `cmd:"" help:"Print the crop rectangle for a source size"`
	Health   HealthCmd   `cmd:"" help:"Query a running server's health service"`
	Sessions SessionsCmd `cmd:"" help:"List finalized sessions from the catalog"`
	Version  VersionCmd  `cmd:"" help:"Print the version"`
}

// RegionFlags are shared by commands that take a crop.
type RegionFlags struct {
	Anchor string  `help:"Crop anchor (top-left, top, ..., bottom-right)" default:"center"`
	Width  float64 `help:"Crop width in percent of the source" default:"100"`
	Height float64 `help:"Crop height in percent of the source" default:"100"`
}

func (f RegionFlags) region() (crop.Region, error) {
	a, err := crop.ParseAnchor(f.Anchor)
	if err != nil {
		return crop.Region{}, err
	}
	r := crop.Region{Anchor: a, WidthFraction: f.Width / 100, HeightFraction: f.Height / 100}
	return r, r.Validate()
}

type DedupCmd struct {
	Files     []string `arg:"" name:"files" help:"Images in capture order" type:"existingfile"`
	Out       string   `help:"Directory for the frame archive" type:"path" default:"."`
	Threshold float64  `help:"Minimum perceptual similarity in percent for a duplicate" default:"95"`
	NoBytes   bool     `help:"Skip the identical-bytes stage"`
	NoAverage bool     `help:"Skip the exact average-hash stage"`
	RegionFlags
}

type CropCmd struct {
	SourceWidth  int `arg:"" name:"width" help:"Source width in pixels"`
	SourceHeight int `arg:"" name:"height" help:"Source height in pixels"`
	RegionFlags
}

type HealthCmd struct {
	Addr    string        `help:"gRPC address of the server" default:"localhost:50061"`
	Timeout time.Duration `help:"Request timeout" default:"3s"`
}

type SessionsCmd struct {
	DB    string `help:"Catalog database" type:"path" default:"captures/catalog.db"`
	Limit int    `help:"Maximum sessions to list" default:"50"`
}

type VersionCmd struct{}

func (cmd *DedupCmd) thresholds() dedup.Thresholds {
	return dedup.Thresholds{
		IdenticalBytes: !cmd.NoBytes,
		AverageExact:   !cmd.NoAverage,
		PHashMin:       cmd.Threshold / 100,
	}
}

func (cmd *DedupCmd) Run() error {
	region, err := cmd.region()
	if err != nil {
		return err
	}
	cfg := capture.DefaultConfig()
	cfg.Region = region

	w := archive.NewWriter(cmd.Out)
	bar := progressbar.NewOptions(len(cmd.Files),
		progressbar.OptionSetDescription("deduplicating"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	sum, err := replay.Run(context.Background(), cmd.Files, cfg, cmd.thresholds(), w, func(string) { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	for _, f := range sum.Skipped {
		fmt.Printf("⚠️  %s is not a readable image, skipped\n", f)
	}
	fmt.Printf("Kept %d of %d images\n", sum.Retained, sum.Total)
	if sum.Retained > 0 {
		// the engine only logs sink failures
		if _, err := os.Stat(w.Path(sum.SessionID)); err != nil {
			return fmt.Errorf("archive not written: %w", err)
		}
		fmt.Printf("Archive: %s\n", w.Path(sum.SessionID))
	}
	return nil
}

func (cmd *CropCmd) Run() error {
	region, err := cmd.region()
	if err != nil {
		return err
	}
	r, err := crop.Compute(cmd.SourceWidth, cmd.SourceHeight, region)
	if err != nil {
		return err
	}
	fmt.Printf("%s on %dx%d: x=%d y=%d w=%d h=%d\n", region, cmd.SourceWidth, cmd.SourceHeight, r.X, r.Y, r.W, r.H)
	return nil
}

func (cmd *HealthCmd) Run() error {
	st, err := health.Check(context.Background(), cmd.Addr, cmd.Timeout)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", health.Service, st)
	return nil
}

func (cmd *SessionsCmd) Run() error {
	ctx := context.Background()
	c, err := catalog.Open(ctx, cmd.DB)
	if err != nil {
		return err
	}
	defer c.Close()

	sessions, err := c.Sessions(ctx, cmd.Limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}
	for _, s := range sessions {
		archiveName := s.Archive
		if archiveName == "" {
			archiveName = "-"
		}
		fmt.Printf("%s  %s  %3d frames  %s\n", s.ID, s.Finalized.Local().Format(time.DateTime), s.Frames, filepath.Base(archiveName))
	}
	return nil
}

func (cmd *VersionCmd) Run() error {
	fmt.Println(Version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("slidecapture"),
		kong.Description("Offline tools for slide capture sessions."),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
