package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dubsync/internal/overlay"
	"dubsync/internal/pipeline"
	"dubsync/internal/timeline"
)

func newDubCommand(ctx *commandContext) *cobra.Command {
	var (
		segmentsPath   string
		outputPath     string
		languageTag    string
		silentOriginal bool
		report         bool
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "dub SOURCE TRANSLATED_AUDIO",
		Short: "Place translated speech at the original phrase offsets and mux the result",
		Long: `Dub replaces the audio of SOURCE (.mp4, .avi, or .mp3) with a track built
from TRANSLATED_AUDIO (.mp3). Each translated phrase is placed where its
original phrase started; phrases that run long are sped up to fit.

Phrases are found by silence detection on both tracks and paired in order,
unless --segments names a transcript manifest.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("silent-original") {
				cfg.Compose.SilentOriginalAudio = silentOriginal
			}
			runner, err := ctx.newRunner()
			if err != nil {
				return err
			}

			result, err := runner.Run(cmd.Context(), pipeline.Request{
				SourcePath:     args[0],
				TranslatedPath: args[1],
				ManifestPath:   segmentsPath,
				OutputPath:     outputPath,
				Language:       languageTag,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, dubSummary(result))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", result.OutputPath)
			fmt.Fprintf(out, "Placed %d of %d segments (%d scaled, %d skipped, %d unfit)\n",
				result.Stats.Placed, result.Stats.Segments, result.Stats.Scaled, result.Stats.Skipped, result.Stats.ReconcileFailures)
			if report {
				fmt.Fprintln(out, renderPlacementTable(result.Table, result.Placements))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&segmentsPath, "segments", "s", "", "Transcript manifest (.json or .yaml) with original and optional translated intervals")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (default: <source>_translated<ext>)")
	cmd.Flags().StringVarP(&languageTag, "language", "l", "", "Target language tag for the audio track metadata")
	cmd.Flags().BoolVar(&silentOriginal, "silent-original", false, "Drop the original audio instead of mixing it under the dub")
	cmd.Flags().BoolVar(&report, "report", false, "Print a per-segment placement table")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run summary as JSON")
	return cmd
}

type dubJSON struct {
	RunID      string                  `json:"run_id"`
	Output     string                  `json:"output"`
	Kind       string                  `json:"kind"`
	Language   string                  `json:"language,omitempty"`
	DurationMs int64                   `json:"duration_ms"`
	Digest     string                  `json:"digest"`
	ElapsedMs  int64                   `json:"elapsed_ms"`
	Stats      overlay.Stats           `json:"stats"`
	Segments   timeline.AlignmentTable `json:"segments"`
}

func dubSummary(result *pipeline.Result) dubJSON {
	return dubJSON{
		RunID:      result.RunID,
		Output:     result.OutputPath,
		Kind:       string(result.Kind),
		Language:   result.Language,
		DurationMs: result.DurationMs,
		Digest:     result.Digest,
		ElapsedMs:  result.Elapsed.Milliseconds(),
		Stats:      result.Stats,
		Segments:   result.Table,
	}
}

func renderPlacementTable(table timeline.AlignmentTable, placements []overlay.Placement) string {
	rows := make([][]string, 0, len(table))
	for i, seg := range table {
		translated := "-"
		if seg.Translated != nil {
			translated = seg.Translated.String()
		}
		outcome := "placed"
		if i < len(placements) {
			outcome = placementOutcome(placements[i])
		}
		rows = append(rows, []string{
			seg.ID,
			seg.Original.String(),
			translated,
			outcome,
			truncateText(seg.Text, 40),
		})
	}
	return renderTable(
		[]string{"ID", "Original", "Translated", "Outcome", "Text"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func placementOutcome(p overlay.Placement) string {
	if p.Skipped {
		return "skipped"
	}
	switch p.Decision.Action {
	case overlay.ActionScaled:
		return "scaled x" + strconv.FormatFloat(p.Decision.Scale, 'f', 2, 64)
	case overlay.ActionFailed:
		return "unfit"
	default:
		return "placed"
	}
}

func truncateText(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

