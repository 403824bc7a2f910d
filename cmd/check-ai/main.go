package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/app"
)

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "camsearch-check-ai",
		Short:        "Report which encoders are reachable and what the catalog holds",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}
	app.BindCommonFlags(cmd, v)
	cmd.Flags().String("query", "", "run a sample search after loading the catalog")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, v *viper.Viper) error {
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

	st := services.Status
	fmt.Println("🔍 Checking AI collaborators")
	fmt.Println("============================")
	fmt.Printf("   - Text encoder:    %s (%d dims)\n", st.TextEncoder, st.TextDimensions)
	fmt.Printf("   - Visual search:   %s\n", enabled(st.VisualAvailable))
	fmt.Printf("   - LLM query parse: %s\n", enabled(st.LLMExtractor))
	fmt.Printf("   - Person crops:    %s\n", st.CropEncoder)
	fmt.Printf("   - Color estimator: %s\n", enabled(st.ColorEstimator))
	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.BaseURL == "" {
		fmt.Println("⚠️  No OpenAI credentials configured; remote text encoding and LLM parsing are off")
	}
	fmt.Println()

	loaded, err := services.Pipeline.Rehydrate(ctx)
	if err != nil {
		return err
	}
	videos, err := services.Videos.List(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("📹 Total videos: %d\n", len(videos))
	fmt.Printf("🖼️  Frames loaded: %d\n", loaded)

	stats := services.Catalog.Stats()
	fmt.Printf("📊 Indexed: %d text, %d visual (%s)\n", stats.TextIndexed, stats.VisualIndexed, stats.Mode)

	q, _ := cmd.Flags().GetString("query")
	if strings.TrimSpace(q) == "" {
		return nil
	}

	resp := services.Engine.Run(ctx, q, 0)
	fmt.Printf("\n🔎 %q → %d results (parsed by %s)\n", q, resp.Count, resp.Query.Source)
	for _, r := range resp.Results {
		fmt.Printf("   %s  %-24s score=%.3f labels=%v matched=%v\n",
			r.Clock, r.ImageRef, r.TotalScore, r.Labels, r.MatchedDetections)
	}
	return nil
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}
