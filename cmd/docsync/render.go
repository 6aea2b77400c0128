package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"orgdash/internal/app"
	"orgdash/internal/ingest"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

type liveStatus struct {
	Phase     string `json:"phase"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total_chunks"`
	Checks    int    `json:"consolidation_checks"`
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func renderRun(w io.Writer, r app.RunResult) error {
	t := newTable(w, "Ingestion run")
	t.AppendHeader(table.Row{"Run", "References", "Chunks", "Completed", "Failed", "Documents", "Partial"})
	t.AppendRow(table.Row{r.RunID, r.References, r.TotalChunks, r.Completed, r.Failed, r.TotalDocuments, r.Partial})
	t.Render()
	return nil
}

func renderStatus(w io.Writer, d ingest.DetailedProgress, live *liveStatus, now time.Time) {
	if d.Stats == nil && d.TotalChunks == 0 {
		fmt.Fprintln(w, "no stats cached, run `docsync init`")
		return
	}

	if s := d.Stats; s != nil {
		t := newTable(w, "Site")
		t.AppendRow(table.Row{"Site", s.SiteName})
		t.AppendRow(table.Row{"Documents", humanize.Comma(int64(s.DocumentCount))})
		t.AppendRow(table.Row{"New this week", s.NewDocumentsThisWeek})
		t.AppendRow(table.Row{"Last sync", when(s.LastSync, now)})
		t.AppendRow(table.Row{"Last consolidation", when(s.LastConsolidation, now)})
		t.AppendRow(table.Row{"State", state(s.Loading, s.ChunkProcessing, s.ConsolidationCompleted, s.Error)})
		if s.Truncated {
			t.AppendRow(table.Row{"Depth", fmt.Sprintf("truncated at %d", s.MaxDepthScanned)})
		}
		t.Render()
	}

	if len(d.ChunksDetail) > 0 {
		t := newTable(w, fmt.Sprintf("Chunks %d/%d (%.1f%%)", d.CompletedChunks, d.TotalChunks, d.Percentage))
		t.AppendHeader(table.Row{"#", "Status", "Docs", "Success", "Time", "Processed", "Error"})
		for _, c := range d.ChunksDetail {
			t.AppendRow(table.Row{
				c.ChunkNumber, c.Status, c.DocumentsProcessed,
				strconv.FormatFloat(c.SuccessRate, 'f', 1, 64) + "%",
				fmt.Sprintf("%.2fs", c.ProcessingTime),
				when(c.ProcessedAt, now), c.ErrorMessage,
			})
		}
		t.Render()
	}

	if sum := d.DocumentsSummary; sum != nil {
		t := newTable(w, "Types")
		t.AppendHeader(table.Row{"PDF", "Word", "Excel", "PowerPoint", "Other"})
		t.AppendRow(table.Row{sum.PDF, sum.Word, sum.Excel, sum.PowerPoint, sum.Other})
		t.Render()
	}

	if len(d.RecentDocuments) > 0 {
		t := newTable(w, "Recent documents")
		t.AppendHeader(table.Row{"Name", "Folder", "Size", "Modified", "By"})
		for _, doc := range d.RecentDocuments {
			t.AppendRow(table.Row{doc.Name, doc.FolderPath, humanize.IBytes(uint64(max(doc.Size, 0))), humanize.RelTime(doc.ModifiedAt, now, "ago", "from now"), doc.ModifiedBy})
		}
		t.Render()
	}

	if live != nil {
		t := newTable(w, "Workflow")
		t.AppendHeader(table.Row{"Phase", "Completed", "Failed", "Chunks", "Checks"})
		t.AppendRow(table.Row{live.Phase, live.Completed, live.Failed, live.Total, live.Checks})
		t.Render()
	}
}

func when(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

func state(loading, processing, consolidated, failed bool) string {
	switch {
	case failed:
		return "error"
	case loading:
		return "loading"
	case processing:
		return "processing chunks"
	case consolidated:
		return "consolidated"
	default:
		return "basic"
	}
}
