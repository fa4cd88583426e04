package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one column of a listing. A zero maxWidth leaves the
// column unbounded; wider cells are trimmed.
type column struct {
	header   string
	align    text.Align
	maxWidth int
}

// listing renders rows under a fixed set of columns. Short rows are padded.
type listing []column

var (
	jobListing = listing{
		{header: "ID"},
		{header: "File", maxWidth: 40},
		{header: "Topic", maxWidth: 24},
		{header: "Rows", align: text.AlignRight},
		{header: "Status"},
		{header: "Progress"},
		{header: "Created"},
		{header: "Detail", maxWidth: 48},
	}
	topicListing = listing{
		{header: "ID"},
		{header: "Name", maxWidth: 32},
		{header: "Provider"},
		{header: "Model"},
		{header: "Description", maxWidth: 48},
	}
	userListing = listing{
		{header: "Username"},
		{header: "Role"},
		{header: "Must Change"},
		{header: "Created"},
	}
)

func (l listing) render(rows [][]string) string {
	if len(l) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(l))
	configs := make([]table.ColumnConfig, len(l))
	for i, c := range l {
		header[i] = c.header
		align := c.align
		if align == text.AlignDefault {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if c.maxWidth > 0 {
			configs[i].WidthMax = c.maxWidth
			configs[i].WidthMaxEnforcer = text.Trim
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(l))
		for i := range l {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render() + "\n"
}
