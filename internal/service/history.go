package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyike/RightOfWay/config"
)

type HistoryParams struct {
	Cursor int64 `json:"cursor"`
	Limit  int   `json:"limit"`
}

type TranscriptParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
	Path   string `json:"path"`
}

type TranscriptFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

func decodeParams(paramsJson string, v any) error {
	if strings.TrimSpace(paramsJson) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(paramsJson), v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// ListNegotiations pages through the archive, newest first.
func ListNegotiations(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	var p HistoryParams
	if err := decodeParams(paramsJson, &p); err != nil {
		return nil, err
	}
	store := r.Services().Store
	if store == nil {
		return nil, errors.New("negotiation archive not configured")
	}
	items, err := store.ListNegotiations(context.Background(), p.Cursor, p.Limit)
	if err != nil {
		return nil, err
	}
	var next int64
	if n := len(items); n > 0 {
		next = items[n-1].RowID
	}
	return map[string]any{"items": items, "next_cursor": next}, nil
}

func GetNegotiation(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	var p struct {
		ID string `json:"id"`
	}
	if err := decodeParams(paramsJson, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.New("id is required")
	}
	store := r.Services().Store
	if store == nil {
		return nil, errors.New("negotiation archive not configured")
	}
	rec, err := store.GetNegotiation(context.Background(), p.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("negotiation %s not found", p.ID)
	}
	return rec, nil
}

func resultsDir() (string, error) {
	cfg := config.Get()
	dir := strings.TrimSpace(cfg.ResultsDir)
	if dir == "" {
		return "", errors.New("results_dir is not configured")
	}
	return filepath.Abs(dir)
}

// ListTranscripts lists exported markdown transcripts under the results
// directory, paged by path.
func ListTranscripts(paramsJson string) (any, error) {
	var p TranscriptParams
	if err := decodeParams(paramsJson, &p); err != nil {
		return nil, err
	}
	dir, err := resultsDir()
	if err != nil {
		return nil, err
	}
	return listTranscripts(dir, p.Cursor, p.Limit)
}

func listTranscripts(dir, cursor string, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var items []TranscriptFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		items = append(items, TranscriptFile{Name: d.Name(), Path: filepath.ToSlash(path)})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{"items": []TranscriptFile{}, "next_cursor": ""}, nil
		}
		return nil, fmt.Errorf("walk results dir: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	start := 0
	if cursor != "" {
		start = sort.Search(len(items), func(i int) bool { return items[i].Path > cursor })
	}
	end := min(start+limit, len(items))

	next := ""
	if end < len(items) {
		next = items[end-1].Path
	}
	return map[string]any{"items": items[start:end], "next_cursor": next}, nil
}

// ReadTranscript returns one exported transcript. Paths outside the results
// directory are refused.
func ReadTranscript(paramsJson string) (any, error) {
	var p TranscriptParams
	if err := decodeParams(paramsJson, &p); err != nil {
		return nil, err
	}
	dir, err := resultsDir()
	if err != nil {
		return nil, err
	}
	return readTranscript(dir, p.Path)
}

func readTranscript(dir, path string) (*TranscriptFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.New("path is outside the results directory")
	}
	if !strings.EqualFold(filepath.Ext(target), ".md") {
		return nil, errors.New("path is not a markdown file")
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return &TranscriptFile{
		Name:    filepath.Base(target),
		Path:    filepath.ToSlash(target),
		Content: string(content),
	}, nil
}
