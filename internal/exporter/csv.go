package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mertoncli/internal/config"
)

// utf8BOM lets Excel detect UTF-8 in CSV reports
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes calibration reports below the configured report and
// data directories.
type CSVWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewCSVWriter creates a writer. With nil paths every path is used as given.
func NewCSVWriter(paths *config.Paths) *CSVWriter {
	return &CSVWriter{paths: paths, logger: slog.Default()}
}

// WithLogger returns a copy of the writer that logs to logger
func (w *CSVWriter) WithLogger(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		return w
	}
	return &CSVWriter{paths: w.paths, logger: logger}
}

// ResolvePath maps a report path to its location on disk. Absolute paths are
// kept, "data/" paths go under the data directory and everything else under
// the reports directory.
func (w *CSVWriter) ResolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.paths == nil {
		return filePath
	}
	slashed := filepath.ToSlash(filePath)
	if rest, ok := strings.CutPrefix(slashed, "data/"); ok {
		return w.paths.GetDataPath(rest)
	}
	return w.paths.GetReportPath(filePath)
}

// WriteTable replaces filePath with a BOM-prefixed table. The file is
// written next to its target and renamed into place, so readers never see
// a partial report.
func (w *CSVWriter) WriteTable(filePath string, headers []string, rows [][]string) error {
	fullPath := w.ResolvePath(filePath)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(utf8BOM); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	if err := writeRows(tmp, headers, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	w.logger.Debug("CSV table written",
		slog.String("path", fullPath),
		slog.Int("rows", len(rows)))
	return nil
}

// AppendRows adds rows to the end of filePath without a header, creating
// the file if needed
func (w *CSVWriter) AppendRows(filePath string, rows [][]string) error {
	fullPath := w.ResolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	if err := writeRows(file, nil, rows); err != nil {
		file.Close()
		return err
	}

	w.logger.Debug("CSV rows appended",
		slog.String("path", fullPath),
		slog.Int("rows", len(rows)))
	return file.Close()
}

func writeRows(out io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(out)
	if len(headers) > 0 {
		if err := cw.Write(headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
