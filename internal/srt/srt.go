package srt

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
	"github.com/oukeidos/polysub/internal/files"
)

// Segment is a single subtitle entry. Text holds the dialogue with line
// breaks preserved as "\n"; an empty Text means the entry has no dialogue
// (or, in a target-language file, no translation yet).
type Segment struct {
	Index   int
	StartAt time.Duration
	EndAt   time.Duration
	Text    string
}

// Load reads subtitles from a file and returns them as a slice of Segment.
// The format is detected from the file extension or content.
func Load(path string) ([]Segment, error) {
	subs, err := astisub.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return fromAstisub(subs), nil
}

// Validate checks that segments are usable as translation sources: at least
// one entry, at least one line of dialogue, and sane timestamps.
func Validate(segments []Segment) error {
	if len(segments) == 0 {
		return fmt.Errorf("no subtitles found in file")
	}

	hasText := false
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			hasText = true
		}
		if seg.StartAt < 0 || seg.EndAt < 0 {
			return fmt.Errorf("negative timestamp at segment %d (index %d)", i+1, seg.Index)
		}
		if seg.EndAt < seg.StartAt {
			return fmt.Errorf("EndTime is before StartTime at segment %d (index %d)", i+1, seg.Index)
		}
	}

	if !hasText {
		return fmt.Errorf("file contains subtitles but no dialogue text")
	}
	return nil
}

func fromAstisub(subs *astisub.Subtitles) []Segment {
	segments := make([]Segment, 0, len(subs.Items))
	for i, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			lines = append(lines, l.String())
		}
		segments = append(segments, Segment{
			Index:   i + 1,
			StartAt: item.StartAt,
			EndAt:   item.EndAt,
			Text:    strings.Join(lines, "\n"),
		})
	}
	return segments
}

func toAstisub(segments []Segment) *astisub.Subtitles {
	subs := astisub.NewSubtitles()
	for _, seg := range segments {
		item := &astisub.Item{
			StartAt: seg.StartAt,
			EndAt:   seg.EndAt,
		}
		for _, l := range strings.Split(seg.Text, "\n") {
			item.Lines = append(item.Lines, astisub.Line{
				Items: []astisub.LineItem{{Text: l}},
			})
		}
		subs.Items = append(subs.Items, item)
	}
	return subs
}

// Save writes segments to a file atomically, determining the format by
// extension (.vtt for WebVTT, anything else SRT).
func Save(path string, segments []Segment) error {
	subs := toAstisub(segments)

	var buf bytes.Buffer
	var writeErr error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		writeErr = subs.WriteToWebVTT(&buf)
	default:
		writeErr = subs.WriteToSRT(&buf)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to render subtitles: %w", writeErr)
	}

	return files.AtomicWrite(path, buf.Bytes(), 0600)
}
