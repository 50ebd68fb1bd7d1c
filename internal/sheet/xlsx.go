package sheet

import (
	"fmt"

	odkwkt "github.com/tingold/odk-wkt"

	"github.com/xuri/excelize/v2"
)

func xlsxSheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return f.GetSheetList(), nil
}

func readXLSX(path, name string) (string, []string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, nil, ErrNoSheets
	}

	if name == "" {
		name = sheets[0]
	} else if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		return "", nil, nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}

	all, err := f.GetRows(name)
	if err != nil {
		return "", nil, nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(all) == 0 {
		return name, nil, nil, nil
	}

	return name, all[0], all[1:], nil
}

// writeXLSX reopens the source workbook, applies the table's written cells
// to the named sheet and saves the result to dst.
func writeXLSX(src, dst, name string, t *odkwkt.MemTable) error {
	f, err := excelize.OpenFile(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, ref := range t.Dirty() {
		cell, err := excelize.CoordinatesToCellName(ref.Col, ref.Row+1)
		if err != nil {
			return err
		}

		var value string
		if ref.Row == 0 {
			value = t.HeaderRow()[ref.Col-1]
		} else {
			value = t.Cell(ref.Row, ref.Col)
		}

		if err := f.SetCellStr(name, cell, value); err != nil {
			return fmt.Errorf("write %s!%s: %w", name, cell, err)
		}
	}

	return f.SaveAs(dst)
}
