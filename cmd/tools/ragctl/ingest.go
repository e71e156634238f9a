package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/docchat/backend/internal/service/ingest"
)

func newIngestCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "ingest [glob...]",
		Short: "Chunk, embed and insert documents matching the given globs",
		Long: `Expands each pattern (doublestar syntax, e.g. "docs/**/*.md"), skips
unsupported extensions and inserts every file into the configured collection.
Files whose contents were already ingested are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			files, err := expandPatterns(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported documents match %v", args)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				if err := a.Ingest.ResetCollection(ctx); err != nil {
					return err
				}
			}

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription("Ingesting"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWriter(os.Stderr),
			)

			var inserted, skipped, failed int
			for _, path := range files {
				bar.Describe(path)
				result, err := a.Ingest.IngestFile(ctx, path)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
				case result.Skipped:
					skipped++
				default:
					inserted += result.Inserted
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			fmt.Printf("\nTotal number of chunks inserted: %d (files: %d, skipped: %d, failed: %d)\n", inserted, len(files), skipped, failed)
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate the collection before ingesting")
	return cmd
}

// expandPatterns resolves globs to a sorted, de-duplicated list of supported files.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			if seen[path] || !ingest.SupportedExtension(path) {
				continue
			}
			seen[path] = true
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}
