package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dubsync/internal/config"
	"dubsync/internal/manifest"
	"dubsync/internal/muxer"
	"dubsync/internal/segmenter"
	"dubsync/internal/timeline"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var (
		profile string
		format  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "segment MEDIA",
		Short: "Print the speech intervals silence detection finds in a file",
		Long: `Segment decodes MEDIA and prints the speech intervals separated by silence,
using the original or translated segmentation profile. The intervals are the
phrase boundaries an external transcription step should use; --out writes
them as a transcript manifest that dub --segments accepts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			outputFormat := strings.ToLower(strings.TrimSpace(format))
			switch outputFormat {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want table, json, or yaml)", format)
			}
			p, err := cfg.Profile(profile)
			if err != nil {
				return err
			}
			if _, err := muxer.ValidateSource(args[0]); err != nil {
				return err
			}

			decoder, err := ctx.newDecoder()
			if err != nil {
				return err
			}
			buf, err := decoder.Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			intervals, err := segmenter.Segment(buf, segmenter.FromProfile(p))
			if err != nil {
				return err
			}
			segments := timeline.SegmentsFromIntervals(intervals)
			doc := manifest.FromSegments("", segments)

			if strings.TrimSpace(outPath) != "" {
				target, err := config.ExpandPath(strings.TrimSpace(outPath))
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
				if err := manifest.Write(target, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d segments to %s\n", len(segments), target)
			}

			switch outputFormat {
			case "json":
				data, err := doc.Encode(manifest.FormatJSON)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			case "yaml":
				data, err := doc.Encode(manifest.FormatYAML)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			out := cmd.OutOrStdout()
			if len(segments) == 0 {
				fmt.Fprintf(out, "No speech detected in %s (%dms)\n", args[0], buf.DurationMs())
				return nil
			}
			fmt.Fprintln(out, renderSegmentTable(segments))
			fmt.Fprintf(out, "%d segments in %dms (profile %s)\n", len(segments), buf.DurationMs(), strings.ToLower(profile))
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", config.ProfileOriginal, "Segmentation profile: original or translated")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, or yaml")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write the segments as a manifest (.json or .yaml)")
	return cmd
}

func renderSegmentTable(segments []timeline.TextSegment) string {
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, []string{
			seg.ID,
			strconv.FormatInt(seg.Original.StartMs, 10),
			strconv.FormatInt(seg.Original.EndMs, 10),
			strconv.FormatInt(seg.Original.DurationMs(), 10),
		})
	}
	return renderTable(
		[]string{"ID", "Start (ms)", "End (ms)", "Length (ms)"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}
