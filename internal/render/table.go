package render

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}
	rows = alignDecimals(rows, colCount, rightAlignCols)

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = displayWidth(header)
	}
	for _, row := range rows {
		for i := 0; i < colCount; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if w := displayWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, formatRow(headers, widths, rightAlignCols))
	}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

// alignDecimals pads numeric cells of right-aligned columns on the right so their
// decimal points line up. Other cells are left untouched.
func alignDecimals(rows [][]string, colCount int, rightAlignCols map[int]bool) [][]string {
	fracWidths := make([]int, colCount)
	for _, row := range rows {
		for i, cell := range row {
			if rightAlignCols[i] && isNumeric(cell) {
				fracWidths[i] = max(fracWidths[i], fractionWidth(cell))
			}
		}
	}
	out := make([][]string, len(rows))
	for r, row := range rows {
		aligned := make([]string, len(row))
		for i, cell := range row {
			if rightAlignCols[i] && isNumeric(cell) {
				cell += strings.Repeat(" ", fracWidths[i]-fractionWidth(cell))
			}
			aligned[i] = cell
		}
		out[r] = aligned
	}
	return out
}

// fractionWidth is the width of the decimal point and the digits after it.
func fractionWidth(cell string) int {
	if i := strings.IndexByte(cell, '.'); i >= 0 {
		return len(cell) - i
	}
	return 0
}

func isNumeric(cell string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return err == nil
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	var b strings.Builder
	for i := 0; i < len(widths); i++ {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(padCell(cell, widths[i], rightAlignCols[i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func padCell(value string, width int, rightAlign bool) string {
	valueWidth := displayWidth(value)
	if valueWidth >= width {
		return value
	}
	padding := width - valueWidth
	if rightAlign {
		return strings.Repeat(" ", padding) + value
	}
	return value + strings.Repeat(" ", padding)
}

func displayWidth(value string) int {
	return runewidth.StringWidth(value)
}
