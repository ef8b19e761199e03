package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xxxsen/docrank/internal/config"
	"github.com/xxxsen/docrank/internal/model"
	"github.com/xxxsen/docrank/internal/report"
	"github.com/xxxsen/docrank/internal/service"
)

type analyzeOptions struct {
	format   string
	sortKey  string
	order    string
	output   string
	progress bool
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [files...]",
		Short: "rank and summarize local documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), *configPath, args, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format: table, markdown, html or json")
	cmd.Flags().StringVar(&opts.sortKey, "sort", "ranking", "sort by ranking or name")
	cmd.Flags().StringVar(&opts.order, "order", "desc", "sort order: asc or desc")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.progress, "progress", true, "show a progress bar on stderr")
	return cmd
}

// runAnalyze validates its flags and opens the output before reading any
// document.
func runAnalyze(ctx context.Context, configPath string, paths []string, opts *analyzeOptions, stdout io.Writer) (retErr error) {
	sortKey, order, err := report.ParseSort(opts.sortKey, opts.order)
	if err != nil {
		return err
	}
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}
	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			_ = f.Close()
			if retErr != nil {
				_ = os.Remove(opts.output)
			}
		}()
		out = f
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	archive, _, err := buildArchiveService(cfg)
	if err != nil {
		return err
	}
	docs, err := readDocuments(ctx, paths, cfg.Upload.MaxFileSize, archive)
	if err != nil {
		return err
	}

	var svcOpts []service.AnalysisOption
	if opts.progress {
		bar := progressbar.NewOptions(len(docs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		svcOpts = append(svcOpts, service.WithProgress(func(done, total int, res model.DocumentResult) {
			bar.Describe(res.FileName)
			_ = bar.Add(1)
		}))
		defer func() { _ = bar.Finish() }()
	}
	analysis, err := buildAnalysisService(cfg, svcOpts...)
	if err != nil {
		return err
	}
	results, err := analysis.ProcessAll(ctx, docs)
	if err != nil {
		return err
	}
	return writeReport(out, format, report.Sort(results, sortKey, order))
}

func readDocuments(ctx context.Context, paths []string, maxSize int64, archive *service.ArchiveService) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		if maxSize > 0 && info.Size() > maxSize {
			return nil, fmt.Errorf("%s: file too large (%d bytes)", path, info.Size())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		if _, err := archive.Save(ctx, name, data); err != nil {
			return nil, err
		}
		docs = append(docs, model.Document{
			Name:        name,
			ContentType: config.TypeByExtension(name),
			Content:     strings.ToValidUTF8(string(data), "\uFFFD"),
		})
	}
	return docs, nil
}

func parseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "json", "markdown", "html", "table":
		return f, nil
	case "md":
		return "markdown", nil
	case "":
		return "table", nil
	}
	return "", fmt.Errorf("unsupported format: %s", format)
}

func writeReport(w io.Writer, format string, results []model.DocumentResult) error {
	format, err := parseFormat(format)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "markdown":
		_, err := io.WriteString(w, report.Markdown(results))
		return err
	case "html":
		page, err := report.NewRenderer().Page("Document Analysis Results", results)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, page)
		return err
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tRANKING\tSTATUS\tSUMMARY")
		for _, res := range results {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", res.FileName, res.Ranking, report.Status(res), oneLine(res.Summary))
		}
		st := report.Summarize(results)
		fmt.Fprintf(tw, "\n%d documents, %d failed, average ranking %.1f\n", st.Total, st.Failed, st.AverageRanking)
		return tw.Flush()
	}
	return fmt.Errorf("unsupported format: %s", format)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
