package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/skuflow/skuflow/internal/client"
	"github.com/skuflow/skuflow/internal/importer"
)

// Upload flags
var (
	chunkSize int64
	retries   int
	noRun     bool
)

func init() {
	uploadCmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "upload chunk size in bytes (default 10 MiB)")
	uploadCmd.Flags().IntVar(&retries, "retries", 0, "retry attempts per chunk (default 3)")
	uploadCmd.Flags().BoolVar(&noRun, "no-run", false, "upload only; do not start processing")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.csv>",
	Short: "Upload a CSV file and process it",
	Long: `Upload a CSV file in resumable byte-range chunks, then drive the
server-side import until every row is processed.

The file must start with the header: sku,name,price,stock

Examples:
  importctl upload products.csv
  importctl upload --chunk-size 1048576 products.csv
  importctl upload --no-run products.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	u, err := newUploader()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	bar := newProgressBar(info.Size(), "uploading")
	u.SetChunkCallback(func(sent, total int64) {
		bar.Set64(sent)
	})

	if noRun {
		// Upload and finalize without driving the import.
		sum, err := u.UploadOnly(cmd.Context(), path)
		if err != nil {
			return err
		}
		bar.Finish()
		fmt.Printf("Uploaded %s (%d bytes) as import %d\n", path, sum.FileSize, sum.ImportID)
		fmt.Printf("Run it with: importctl run %d\n", sum.ImportID)
		return nil
	}

	sum, err := u.Upload(cmd.Context(), path)
	if err != nil {
		return err
	}
	bar.Finish()
	printSummary(sum)
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run <import-id>",
	Short: "Process an uploaded import to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImportID(args[0])
		if err != nil {
			return err
		}
		u, err := newUploader()
		if err != nil {
			return err
		}

		sum, err := u.RunAll(cmd.Context(), id)
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <import-id>",
	Short: "Show the progress of an import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImportID(args[0])
		if err != nil {
			return err
		}
		u, err := newUploader()
		if err != nil {
			return err
		}

		st, err := u.Status(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Printf("Import %d  %s\n", st.ImportID, st.FileName)
		fmt.Printf("  status:     %s\n", st.ProgressStatus)
		fmt.Printf("  progress:   %.2f%% (%d / %d bytes)\n", st.Percentage, st.BytesProcessed, st.FileSizeBytes)
		fmt.Printf("  rows:       %d\n", st.ProcessedRows)
		fmt.Printf("  updated:    %s\n", st.UpdatedAt.Format(time.RFC3339))
		return nil
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors <import-id>",
	Short: "Download the CSV error report for an import",
	Long: `Download the row-level error report as CSV on stdout.

Example:
  importctl errors 42 > import-42-errors.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImportID(args[0])
		if err != nil {
			return err
		}
		u, err := newUploader()
		if err != nil {
			return err
		}

		report, err := u.ErrorReport(cmd.Context(), id)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(report)
		return err
	},
}

// newUploader builds a client from flags, environment, and the config file.
func newUploader() (*client.Uploader, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	server, err := resolveServer(cfg)
	if err != nil {
		return nil, err
	}

	cc := client.Config{BaseURL: server}
	if chunkSize > 0 {
		cc.ChunkSize = chunkSize
	} else if cfg.ChunkSize > 0 {
		cc.ChunkSize = cfg.ChunkSize
	}
	if retries > 0 {
		cc.MaxRetries = retries
	} else if cfg.Retries > 0 {
		cc.MaxRetries = cfg.Retries
	}
	if cfg.Backoff > 0 {
		cc.RetryBackoff = cfg.Backoff
	}
	return client.New(cc), nil
}

func parseImportID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid import id %q", s)
	}
	return id, nil
}

func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(sum *client.Summary) {
	fmt.Printf("Import %d finished: %d created, %d updated, %d failed (%d rows)\n",
		sum.ImportID, sum.Created, sum.Updated, sum.Failed, sum.Rows)
	if len(sum.RowErrors) > 0 {
		fmt.Printf("Row errors (first %d):\n", min(len(sum.RowErrors), 10))
		for i, e := range sum.RowErrors {
			if i == 10 {
				break
			}
			fmt.Printf("  row %d: %s\n", e.RowNumber, joinErrors(e))
		}
		fmt.Printf("Full report: importctl errors %d\n", sum.ImportID)
	}
}

func joinErrors(e importer.RowFailure) string {
	out := ""
	for i, msg := range e.Errors {
		if i > 0 {
			out += " "
		}
		out += msg
	}
	return out
}
