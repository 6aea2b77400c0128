package ingest

import (
	"sort"
	"strings"
	"time"

	"orgdash/internal/models"
)

type Category string

const (
	CategoryPDF        Category = "pdf"
	CategoryWord       Category = "word"
	CategoryExcel      Category = "excel"
	CategoryPowerPoint Category = "powerpoint"
	CategoryOther      Category = "other"
)

// CategoryOf maps a file extension, with or without a leading dot, to its
// type category.
func CategoryOf(ext string) Category {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return CategoryPDF
	case "doc", "docx":
		return CategoryWord
	case "xls", "xlsx":
		return CategoryExcel
	case "ppt", "pptx":
		return CategoryPowerPoint
	default:
		return CategoryOther
	}
}

func Summarize(docs []models.DocumentDetail) models.TypeSummary {
	var s models.TypeSummary
	for _, d := range docs {
		switch CategoryOf(d.Extension) {
		case CategoryPDF:
			s.PDF++
		case CategoryWord:
			s.Word++
		case CategoryExcel:
			s.Excel++
		case CategoryPowerPoint:
			s.PowerPoint++
		default:
			s.Other++
		}
	}
	return s
}

// Recent returns the documents modified at or after now-window, newest first.
func Recent(docs []models.DocumentDetail, now time.Time, window time.Duration) []models.DocumentDetail {
	cutoff := now.Add(-window)
	out := make([]models.DocumentDetail, 0)
	for _, d := range docs {
		if d.ModifiedAt.IsZero() || d.ModifiedAt.Before(cutoff) {
			continue
		}
		out = append(out, d)
	}
	sortByModifiedDesc(out)
	return out
}

func sortByModifiedDesc(docs []models.DocumentDetail) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ModifiedAt.After(docs[j].ModifiedAt) })
}

const (
	mib = 1 << 20

	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
	SizeXLarge = "xlarge"
)

func SizeRange(size int64) string {
	switch {
	case size < mib:
		return SizeSmall
	case size < 10*mib:
		return SizeMedium
	case size < 100*mib:
		return SizeLarge
	default:
		return SizeXLarge
	}
}

type DocumentStats struct {
	Total       int                     `json:"total_documents"`
	TotalSize   int64                   `json:"total_size"`
	ByExtension map[string]int          `json:"by_extension"`
	BySizeRange map[string]int          `json:"by_size_range"`
	Recent      []models.DocumentDetail `json:"recent_documents"`
	Largest     []models.DocumentDetail `json:"largest_documents"`
}

func ComputeDocumentStats(docs []models.DocumentDetail) DocumentStats {
	st := DocumentStats{
		Total:       len(docs),
		ByExtension: map[string]int{},
		BySizeRange: map[string]int{SizeSmall: 0, SizeMedium: 0, SizeLarge: 0, SizeXLarge: 0},
	}
	for _, d := range docs {
		ext := strings.ToLower(d.Extension)
		if ext == "" {
			ext = "unknown"
		}
		st.ByExtension[ext]++
		st.BySizeRange[SizeRange(d.Size)]++
		st.TotalSize += d.Size
	}

	byDate := append([]models.DocumentDetail(nil), docs...)
	sortByModifiedDesc(byDate)
	st.Recent = byDate[:min(10, len(byDate))]

	bySize := append([]models.DocumentDetail(nil), docs...)
	sort.SliceStable(bySize, func(i, j int) bool { return bySize[i].Size > bySize[j].Size })
	st.Largest = bySize[:min(10, len(bySize))]
	return st
}
