package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet        = "Sheet1"
	xlsxFailColor    = "#FFC7CE"
	xlsxEnvColor     = "#FFEB9C"
	xlsxColumnWidth  = 24
	xlsxMessageWidth = 80
)

var xlsxHeaders = []string{"#", "Case", "Method", "URL", "Status", "Result", "Kind", "Duration (ms)", "Message", "Reproduce"}

func NewXLSXSink(t Target) Sink { return &fileSink{name: "xlsx", target: t, render: WriteXLSX} }

// WriteXLSX writes one spreadsheet row per outcome followed by totals.
func WriteXLSX(w io.Writer, sum Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	failStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{xlsxFailColor}},
	})
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}
	envStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{xlsxEnvColor}},
	})
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}
	headStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}

	if err := f.SetColWidth(xlsxSheet, "A", "H", xlsxColumnWidth); err != nil {
		return err
	}
	if err := f.SetColWidth(xlsxSheet, "I", "J", xlsxMessageWidth); err != nil {
		return err
	}
	for i, h := range xlsxHeaders {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", cellName(len(xlsxHeaders), 1), headStyle); err != nil {
		return err
	}

	for i, o := range sum.Outcomes {
		row := i + 2
		result, kind, msg, repro := "PASS", "", "", ""
		if o.Failure != nil {
			result, kind, msg, repro = "FAIL", o.Failure.Kind, o.Failure.Message, CurlCommand(o)
		}
		cells := []any{i + 1, o.Name, o.Method, o.URL, o.StatusCode, result, kind, o.DurationMs, msg, repro}
		for col, v := range cells {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
		if o.Failure == nil {
			continue
		}
		style := failStyle
		if kind == KindNetwork || kind == KindTimeout {
			style = envStyle
		}
		if err := f.SetCellStyle(xlsxSheet, cellName(1, row), cellName(len(cells), row), style); err != nil {
			return err
		}
	}

	row := len(sum.Outcomes) + 3
	totals := [][2]any{
		{"Suite", sum.Name},
		{"Run", sum.RunID},
		{"Total", sum.Total},
		{"Passed", sum.Passed},
		{"Failed", sum.Failed},
		{"Duration (ms)", sum.DurationMs},
	}
	for i, kv := range totals {
		if err := setCell(f, 1, row+i, kv[0]); err != nil {
			return err
		}
		if err := setCell(f, 2, row+i, kv[1]); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func setCell(f *excelize.File, col, row int, v any) error {
	return f.SetCellValue(xlsxSheet, cellName(col, row), v)
}
