package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	odkwkt "github.com/tingold/odk-wkt"
)

func readCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = file.Close() }()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	return header, rows, nil
}

func writeCSV(path string, t *odkwkt.MemTable) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(file)
	header := t.HeaderRow()
	if width := t.Width(); len(header) < width {
		header = append(header, make([]string, width-len(header))...)
	}
	if err := w.Write(header); err != nil {
		_ = file.Close()
		return err
	}
	for row := 1; row <= t.Len(); row++ {
		if err := w.Write(t.Row(row)); err != nil {
			_ = file.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}
