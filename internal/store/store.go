// Package store persists translations as one subtitle file per target
// language next to the source file. Translations accumulate across runs:
// saving merges per-language text into the existing record for an index and
// never clears languages written earlier.
package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oukeidos/polysub/internal/apperrors"
	"github.com/oukeidos/polysub/internal/logger"
	"github.com/oukeidos/polysub/internal/srt"
)

// SubtitleStore holds the source segments and the per-language translation
// state for one source file. Safe for concurrent use; workers write distinct
// indices, but all mutation goes through one mutex regardless.
type SubtitleStore struct {
	mu         sync.Mutex
	sourcePath string
	source     []srt.Segment
	// targets[lang][i] is the translation of source[i], "" when missing.
	targets  map[string][]string
	dirty    map[string]bool
	failures map[int]string
}

// Open loads the source subtitle file and any existing per-language files
// for the given target languages. Target files are aligned to the source by
// start timestamp, so partially-translated files from earlier runs are
// picked up even if they contain fewer cues.
func Open(sourcePath string, langs []string) (*SubtitleStore, error) {
	source, err := srt.Load(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load source subtitles: %w", err)
	}
	if err := srt.Validate(source); err != nil {
		return nil, fmt.Errorf("invalid source subtitles: %w", err)
	}

	s := &SubtitleStore{
		sourcePath: sourcePath,
		source:     source,
		targets:    make(map[string][]string, len(langs)),
		dirty:      make(map[string]bool),
		failures:   make(map[int]string),
	}

	byStart := make(map[time.Duration]int, len(source))
	for i, seg := range source {
		byStart[seg.StartAt] = i
	}

	for _, lang := range langs {
		texts := make([]string, len(source))
		path := s.TargetPath(lang)
		existing, err := srt.Load(path)
		if err == nil {
			for _, seg := range existing {
				if i, ok := byStart[seg.StartAt]; ok {
					texts[i] = seg.Text
				}
			}
			logger.Debug("Loaded existing translations", "lang", lang, "path", path)
		}
		s.targets[lang] = texts
	}

	return s, nil
}

// TargetPath returns the per-language output path, e.g. movie.srt -> movie.de.srt.
func (s *SubtitleStore) TargetPath(lang string) string {
	ext := filepath.Ext(s.sourcePath)
	base := strings.TrimSuffix(s.sourcePath, ext)
	return fmt.Sprintf("%s.%s%s", base, lang, ext)
}

// Count returns the number of source segments.
func (s *SubtitleStore) Count() int {
	return len(s.source)
}

// Text returns the source text for a 1-based index.
func (s *SubtitleStore) Text(index int) (string, error) {
	if index < 1 || index > len(s.source) {
		return "", fmt.Errorf("index %d out of range [1, %d]", index, len(s.source))
	}
	return s.source[index-1].Text, nil
}

// ContextWindow returns up to size source lines before and after the index,
// joined into one string for the prompt context.
func (s *SubtitleStore) ContextWindow(index, size int) string {
	if index < 1 || index > len(s.source) || size <= 0 {
		return ""
	}
	lo := index - 1 - size
	if lo < 0 {
		lo = 0
	}
	hi := index + size
	if hi > len(s.source) {
		hi = len(s.source)
	}

	var parts []string
	for i := lo; i < hi; i++ {
		if i == index-1 {
			continue
		}
		if text := strings.TrimSpace(s.source[i].Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " / ")
}

// SaveTranslations merges translations into the record for an index. Only
// the languages present in the map are touched; saving the same map twice is
// a no-op. Unknown languages are ignored with a warning.
func (s *SubtitleStore) SaveTranslations(index int, translations map[string]string) error {
	if index < 1 || index > len(s.source) {
		return apperrors.Persistence(fmt.Errorf("index %d out of range [1, %d]", index, len(s.source)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for lang, text := range translations {
		texts, ok := s.targets[lang]
		if !ok {
			logger.Warn("Dropping translation for unconfigured language", "index", index, "lang", lang)
			continue
		}
		if texts[index-1] == text {
			continue
		}
		texts[index-1] = text
		s.dirty[lang] = true
	}
	delete(s.failures, index)
	return nil
}

// RecordFailure notes the last error for an index without touching any
// previously saved languages.
func (s *SubtitleStore) RecordFailure(index int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[index] = msg
}

// Failures returns a copy of the recorded per-index failure messages.
func (s *SubtitleStore) Failures() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

// MissingAny returns the indices of segments with dialogue that lack a
// translation in at least one of the given languages, ascending. This works
// from the loaded files, so it survives process restarts.
func (s *SubtitleStore) MissingAny(langs []string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []int
	for i, seg := range s.source {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		for _, lang := range langs {
			texts, ok := s.targets[lang]
			if !ok || strings.TrimSpace(texts[i]) == "" {
				missing = append(missing, i+1)
				break
			}
		}
	}
	sort.Ints(missing)
	return missing
}

// Flush writes every language file with unsaved changes. Cues without a
// translation are omitted so a partial file only contains real output.
func (s *SubtitleStore) Flush() error {
	s.mu.Lock()
	type job struct {
		path     string
		segments []srt.Segment
		lang     string
	}
	var jobs []job
	for lang := range s.dirty {
		texts := s.targets[lang]
		segments := make([]srt.Segment, 0, len(texts))
		for i, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			segments = append(segments, srt.Segment{
				Index:   s.source[i].Index,
				StartAt: s.source[i].StartAt,
				EndAt:   s.source[i].EndAt,
				Text:    text,
			})
		}
		jobs = append(jobs, job{path: s.TargetPath(lang), segments: segments, lang: lang})
	}
	s.mu.Unlock()

	var firstErr error
	for _, j := range jobs {
		if len(j.segments) == 0 {
			continue
		}
		if err := srt.Save(j.path, j.segments); err != nil {
			logger.Error("Failed to write language file", "lang", j.lang, "path", j.path, "error", err)
			if firstErr == nil {
				firstErr = apperrors.Persistence(fmt.Errorf("failed to write %s: %w", j.path, err))
			}
			continue
		}
		s.mu.Lock()
		delete(s.dirty, j.lang)
		s.mu.Unlock()
		logger.Debug("Wrote language file", "lang", j.lang, "count", len(j.segments))
	}
	return firstErr
}
