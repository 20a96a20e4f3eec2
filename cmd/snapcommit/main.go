// Command snapcommit captures a webcam snapshot for a git commit,
// replaces the background, overlays the commit message, and writes the
// annotated PNG. Run it from a post-commit hook. With -remote the raw
// frame is shipped to the gallery daemon, which runs the annotation
// stages itself.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/snapcommit/snapcommit/internal/capture"
	"github.com/snapcommit/snapcommit/internal/config"
	"github.com/snapcommit/snapcommit/internal/gitmeta"
	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/persist"
	"github.com/snapcommit/snapcommit/internal/pipeline"
	"github.com/snapcommit/snapcommit/internal/uploader"
)

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "Path to config file")
		revision   = flag.String("rev", "HEAD", "Commit revision to annotate")
		repoDir    = flag.String("repo", ".", "Git repository directory")
		outDir     = flag.String("out", "", "Output directory (overrides config)")
		device     = flag.String("device", "", "Webcam device index or path (overrides config)")
		noSegment  = flag.Bool("no-segment", false, "Skip background removal")
		noChyron   = flag.Bool("no-chyron", false, "Skip the text overlay")
		doUpload   = flag.Bool("upload", false, "Upload the snapshot to the gallery")
		remote     = flag.Bool("remote", false, "Upload the raw frame and let the gallery annotate it")
	)
	flag.Parse()

	if err := run(*configPath, *revision, *repoDir, *outDir, *device, *noSegment, *noChyron, *doUpload, *remote); err != nil {
		fmt.Fprintf(os.Stderr, "snapcommit: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, revision, repoDir, outDir, device string, noSegment, noChyron, doUpload, remote bool) error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)

	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if device != "" {
		cfg.Capture.Device = device
	}
	if noSegment {
		cfg.Segment.Enabled = false
	}
	if noChyron {
		cfg.Chyron.Enabled = false
	}

	meta, err := gitmeta.Collector{Dir: repoDir}.Collect(revision)
	if err != nil {
		return err
	}
	logger.Info("annotating commit", "revision", meta.ShortRevision(), "repo", meta.RepoName)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Capture.Timeout)
	defer cancel()

	source := &capture.Source{
		Open: func() (capture.Device, error) {
			return capture.OpenWebcam(cfg.Capture.Device, cfg.Capture.Width, cfg.Capture.Height)
		},
		WarmupFrames: cfg.Capture.WarmupFrames,
	}

	if remote || cfg.Upload.Remote {
		return uploadRaw(ctx, cfg, source, &meta)
	}

	p, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	p.Source = source
	p.Writer = persist.NewWriter(cfg.Output.Dir)

	res, err := p.Run(ctx, &meta)
	if err != nil {
		return err
	}
	fmt.Println(res.Path)

	if doUpload || cfg.Upload.Enabled {
		return upload(cfg, res.Filename, res.PNG, &meta)
	}

	return nil
}

// uploadRaw captures a frame and ships it unannotated; the daemon runs
// the processing stages server-side.
func uploadRaw(ctx context.Context, cfg *config.Config, source *capture.Source, meta *gitmeta.CommitMetadata) error {
	frame, err := source.Capture(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	return upload(cfg, pipeline.Filename(meta, time.Now()), buf.Bytes(), meta)
}

func upload(cfg *config.Config, filename string, data []byte, meta *gitmeta.CommitMetadata) error {
	if cfg.Upload.URL == "" {
		return fmt.Errorf("upload requested but no upload URL configured")
	}
	client := uploader.New(cfg.Upload.URL, cfg.Upload.Timeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Upload.Timeout)
	defer cancel()
	return client.Upload(ctx, filename, data, meta)
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.snapcommit/config.yaml"
	}
	return "snapcommit.yaml"
}
