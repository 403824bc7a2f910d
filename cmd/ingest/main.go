package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/app"
	"github.com/kdimtricp/camsearch/internal/corpus"
	"github.com/kdimtricp/camsearch/internal/ingest"
)

// manifestLine is one detector record. Image paths are relative to the
// manifest file.
type manifestLine struct {
	ingest.FrameInput
	ImagePath      string `json:"image_path,omitempty"`
	PersonCropPath string `json:"person_crop_path,omitempty"`
}

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "camsearch-ingest <manifest.jsonl>",
		Short:        "Ingest detector output from a JSON-lines manifest",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, args[0])
		},
	}
	app.BindCommonFlags(cmd, v)
	cmd.Flags().Bool("skip-duplicates", true, "skip frames that are already stored instead of failing")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, v *viper.Viper, manifest string) error {
	cfg, log, err := app.Setup(cmd, v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	if _, err := services.Pipeline.Rehydrate(ctx); err != nil {
		return err
	}

	f, err := os.Open(manifest)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	skipDuplicates, _ := cmd.Flags().GetBool("skip-duplicates")
	base := filepath.Dir(manifest)

	var ingested, skipped, alerts int
	dec := json.NewDecoder(bufio.NewReader(f))
	for line := 1; ; line++ {
		var rec manifestLine
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("manifest record %d: %w", line, err)
		}

		in, err := rec.load(base)
		if err != nil {
			return fmt.Errorf("manifest record %d: %w", line, err)
		}

		res, err := services.Pipeline.IngestFrame(ctx, in)
		if errors.Is(err, corpus.ErrDuplicateFrame) && skipDuplicates {
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("manifest record %d: %w", line, err)
		}

		ingested++
		for _, a := range res.Alerts {
			alerts++
			fmt.Printf("⚠ ALERT: %s\n", a.Message)
		}
	}

	log.WithFields(logrus.Fields{
		"ingested": ingested,
		"skipped":  skipped,
		"alerts":   alerts,
	}).Info("ingest complete")
	return nil
}

func (m manifestLine) load(base string) (ingest.FrameInput, error) {
	in := m.FrameInput
	if m.ImagePath != "" {
		data, err := os.ReadFile(resolve(base, m.ImagePath))
		if err != nil {
			return in, fmt.Errorf("reading image: %w", err)
		}
		in.Image = data
		if in.ImageRef == "" {
			in.ImageRef = filepath.Base(m.ImagePath)
		}
	}
	if m.PersonCropPath != "" {
		data, err := os.ReadFile(resolve(base, m.PersonCropPath))
		if err != nil {
			return in, fmt.Errorf("reading person crop: %w", err)
		}
		in.PersonCrop = data
	}
	return in, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
