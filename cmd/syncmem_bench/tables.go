package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// newTable creates a table where rows listed in reds are highlighted.
func newTable(reds map[int]bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			switch {
			case reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
}

// resultsTable renders one row per benchmarked backend. Backends with mismatches are shown in red.
func resultsTable(results []*benchResult) string {
	reds := make(map[int]bool)
	table := newTable(reds, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Backend", "DType", "Buffer", "Rounds", "Transfers", "Moved", "Time", "Throughput", "Mismatches")
	for row, r := range results {
		if r.Mismatches > 0 {
			reds[row] = true
		}
		size := uint64(r.Count * r.DType.Size())
		throughput := "-"
		if seconds := r.Elapsed.Seconds(); seconds > 0 {
			throughput = humanize.IBytes(uint64(float64(r.BytesMoved)/seconds)) + "/s"
		}
		table.Row(
			r.Description,
			r.DType.String(),
			humanize.IBytes(size),
			humanize.Comma(int64(r.Rounds)),
			humanize.Comma(int64(r.Transfers)),
			humanize.IBytes(r.BytesMoved),
			r.Elapsed.String(),
			throughput,
			fmt.Sprintf("%d", r.Mismatches),
		)
	}
	return table.Render()
}
