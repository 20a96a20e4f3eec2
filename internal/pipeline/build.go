package pipeline

import (
	"context"

	"github.com/snapcommit/snapcommit/internal/chyron"
	"github.com/snapcommit/snapcommit/internal/compose"
	"github.com/snapcommit/snapcommit/internal/config"
	"github.com/snapcommit/snapcommit/internal/modelstore"
	"github.com/snapcommit/snapcommit/internal/segment"
)

// FromConfig assembles the processing stages from configuration:
// segmentation (resolving the model file first), background spec, and
// chyron renderer. Source and Writer are left for the caller to fill;
// the gallery daemon runs uploaded frames through the result without
// either.
func FromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{}

	if cfg.Segment.Enabled {
		store := &modelstore.Store{
			Path:   cfg.Segment.ModelPath,
			URL:    modelURL(cfg),
			SHA256: cfg.Segment.ModelSHA256,
		}
		modelPath, err := store.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		seg, err := segment.NewDNNSegmenter(modelPath)
		if err != nil {
			return nil, err
		}

		bg, err := compose.Parse(cfg.Segment.Background)
		if err != nil {
			return nil, err
		}

		p.Segmenter = seg
		p.Background = bg
		p.CenterSubject = cfg.Segment.CenterPerson
	}

	if cfg.Chyron.Enabled {
		p.Chyron = chyron.NewRenderer(chyron.NewSystemFontResolver(), chyron.Style{
			DefaultFontName: cfg.Chyron.Font,
			MessageFontName: cfg.Chyron.TitleFont,
			InfoFontName:    cfg.Chyron.InfoFont,
			SHAFontName:     cfg.Chyron.SHAFont,
			StatsFontName:   cfg.Chyron.StatsFont,
			TitleFontSize:   cfg.Chyron.TitleFontSize,
			InfoFontSize:    cfg.Chyron.InfoFontSize,
			Opacity:         cfg.Chyron.Opacity,
		})
	}

	return p, nil
}

func modelURL(cfg *config.Config) string {
	if cfg.Segment.ModelURL != "" {
		return cfg.Segment.ModelURL
	}
	return modelstore.DefaultModelURL
}
