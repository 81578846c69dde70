package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// Record preparation flattens structured chunk metadata into the
// comma-joined wire fields at the last possible moment. Typed companion
// fields (page_numbers, chapter_labels, image_number) carry the same data
// in filterable form.

func chunkRecord(fileID string, doc domain.DocumentMetadata, text string, emb *domain.Embedding, meta domain.ChunkMetadata, date string) domain.Record {
	return domain.Record{
		Vector: emb.Vector,
		Payload: map[string]interface{}{
			"file_id":        fileID,
			"file_name":      doc.FileName,
			"file_type":      doc.FileType,
			"text":           text,
			"pages":          joinInts(meta.Pages),
			"chapters":       strings.Join(meta.Chapters, ","),
			"page_numbers":   meta.Pages,
			"chapter_labels": meta.Chapters,
			"date":           date,
		},
	}
}

func imageRecord(fileID string, doc domain.DocumentMetadata, img domain.ImageData, description string, emb *domain.Embedding, date string) domain.Record {
	return domain.Record{
		Vector: emb.Vector,
		Payload: map[string]interface{}{
			"file_id":              fileID,
			"file_name":            doc.FileName,
			"file_type":            "image_" + doc.FileType,
			"text":                 description,
			"pages":                strconv.Itoa(img.Page),
			"page_numbers":         []int{img.Page},
			"image_number":         img.Number,
			"image_number_in_page": img.NumberInPage,
			"date":                 date,
		},
	}
}

func summaryRecord(fileID string, doc domain.DocumentMetadata, summary string, emb *domain.Embedding, date string) domain.Record {
	return domain.Record{
		Vector: emb.Vector,
		Payload: map[string]interface{}{
			"file_id":      fileID,
			"file_name":    "summary_" + doc.FileName,
			"file_type":    "summary_" + doc.FileType,
			"text":         summary,
			"pages":        strconv.Itoa(doc.TotalPages),
			"chapters":     strconv.FormatBool(doc.HasChapters),
			"total_pages":  doc.TotalPages,
			"has_chapters": doc.HasChapters,
			"full_images":  doc.TotalImages,
			"date":         date,
		},
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func ingestDate() string {
	return time.Now().Format("2006-01-02")
}
