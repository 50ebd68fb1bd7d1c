// Package sheet loads spreadsheet files into tables and saves them back.
// XLSX workbooks are handled with excelize; CSV files with encoding/csv.
package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	odkwkt "github.com/tingold/odk-wkt"
)

// Format is a supported file format.
type Format int

const (
	// FormatXLSX is an Office Open XML workbook.
	FormatXLSX Format = iota + 1
	// FormatCSV is a single comma-separated sheet.
	FormatCSV
)

// CSVSheetName is the name reported for the only sheet of a CSV file.
const CSVSheetName = "csv"

var (
	ErrUnsupportedFormat = errors.New("sheet: unsupported file format")
	ErrSheetNotFound     = errors.New("sheet: sheet not found")
	ErrNoSheets          = errors.New("sheet: workbook has no sheets")
)

// Sheet is one loaded worksheet. Conversions write into the embedded table;
// Save persists them.
type Sheet struct {
	*odkwkt.MemTable

	Name   string
	Path   string
	Format Format
}

// DetectFormat returns the format for a file name by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Sheets lists the sheet names of a file in workbook order.
func Sheets(path string) ([]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	if format == FormatCSV {
		return []string{CSVSheetName}, nil
	}
	return xlsxSheets(path)
}

// Open loads a sheet. An empty name selects the first sheet.
func Open(path, name string) (*Sheet, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var (
		header []string
		rows   [][]string
	)
	switch format {
	case FormatCSV:
		if name != "" && name != CSVSheetName {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
		}
		name = CSVSheetName
		header, rows, err = readCSV(path)
	case FormatXLSX:
		name, header, rows, err = readXLSX(path, name)
	}
	if err != nil {
		return nil, err
	}

	return &Sheet{
		MemTable: odkwkt.NewMemTable(header, rows),
		Name:     name,
		Path:     path,
		Format:   format,
	}, nil
}

// Save writes the sheet to path, or back to the file it was loaded from
// when path is empty. Workbooks keep every other sheet and cell untouched;
// only cells written since Open change.
func (s *Sheet) Save(path string) error {
	if path == "" {
		path = s.Path
	}

	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if format != s.Format {
		return fmt.Errorf("%w: cannot save %s sheet as %q", ErrUnsupportedFormat, formatName(s.Format), filepath.Ext(path))
	}

	if format == FormatCSV {
		return writeCSV(path, s.MemTable)
	}
	return writeXLSX(s.Path, path, s.Name, s.MemTable)
}

func formatName(f Format) string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}
