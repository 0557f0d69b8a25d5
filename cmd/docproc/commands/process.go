package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/ocr"
	"github.com/docuflow/docproc-worker/internal/pipeline"
	"github.com/docuflow/docproc-worker/internal/report"
)

var (
	flagOutputDir           string
	flagFormat              string
	flagEngines             []string
	flagLanguages           []string
	flagRemoteOCRURL        string
	flagMinFieldConfidence  float64
	flagMinEngineConfidence float64
	flagTimeout             time.Duration
)

// supportedExtensions are the image formats the pipeline decodes.
var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

var processCmd = &cobra.Command{
	Use:   "process <file-or-directory>...",
	Short: "Process document images and write reports",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "directory for reports (default: next to each input)")
	processCmd.Flags().StringVarP(&flagFormat, "format", "f", "json", "report format: json, csv, or both")
	processCmd.Flags().StringSliceVar(&flagEngines, "engines", []string{"tesseract"}, "OCR engine preference order")
	processCmd.Flags().StringSliceVar(&flagLanguages, "languages", []string{"eng"}, "OCR language hints")
	processCmd.Flags().StringVar(&flagRemoteOCRURL, "remote-ocr-url", "", "base URL of the remote OCR service")
	processCmd.Flags().Float64Var(&flagMinFieldConfidence, "min-field-confidence", 0.40, "confidence floor for extracted fields")
	processCmd.Flags().Float64Var(&flagMinEngineConfidence, "min-engine-confidence", 0.50, "mean confidence an engine result must reach")
	processCmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "per-document processing timeout (0 disables)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if flagFormat != "json" && flagFormat != "csv" && flagFormat != "both" {
		return fmt.Errorf("unknown format %q (want json, csv, or both)", flagFormat)
	}

	level := "info"
	if flagVerbose {
		level = "debug"
	}
	logger := logging.NewLoggerWithOptions("docproc", logging.Options{Level: level, Console: true})

	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no supported image files found")
	}

	engines := ocr.NewRegistry()
	engines.Register(ocr.NewTesseractEngine(ocr.TesseractConfig{Languages: flagLanguages}))
	if flagRemoteOCRURL != "" {
		engines.Register(ocr.NewRemoteEngine(flagRemoteOCRURL, logger))
	}

	cfg := pipeline.DefaultConfig()
	cfg.EnginePreferenceOrder = flagEngines
	cfg.MinFieldConfidence = flagMinFieldConfidence
	cfg.MinEngineConfidence = flagMinEngineConfidence
	cfg.DocumentTimeout = flagTimeout
	cfg.Languages = flagLanguages

	p := pipeline.New(engines, logger)

	failures := 0
	for _, path := range inputs {
		if err := processFile(cmd.Context(), p, cfg, logger, path); err != nil {
			logger.Error("processing failed", "file", path, "error", err)
			failures++
		}
	}

	logger.Info("batch complete", "processed", len(inputs)-failures, "failed", failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(inputs))
	}
	return nil
}

func processFile(ctx context.Context, p *pipeline.Pipeline, cfg pipeline.Config, logger *logging.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	documentID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	result := p.ProcessBytes(ctx, documentID, data, cfg)

	logger.Info("document processed",
		"file", path, "status", string(result.Status),
		"regions", len(result.Regions), "fields", len(result.Fields),
		"warnings", len(result.Warnings))

	outDir := flagOutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	} else if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(outDir, documentID)

	if flagFormat == "json" || flagFormat == "both" {
		data, err := report.JSON(result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+".json", data, 0o644); err != nil {
			return err
		}
	}
	if flagFormat == "csv" || flagFormat == "both" {
		data, err := report.CSV(result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+".csv", data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// collectInputs expands files and directories into a sorted list of
// supported image paths. Directories are walked recursively.
func collectInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !supportedExtensions[strings.ToLower(filepath.Ext(arg))] {
				return nil, fmt.Errorf("unsupported file type: %s", arg)
			}
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supportedExtensions[strings.ToLower(filepath.Ext(path))] {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}
