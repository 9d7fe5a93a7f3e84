package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// fileEntry is the on-disk shape of one watch-list entry:
//
//	{"urn:...": {"embedding": [0.01, ...], "details": {"name": "..."}}}
type fileEntry struct {
	Embedding []float64              `json:"embedding"`
	Details   map[string]interface{} `json:"details"`
}

// FileLoader reads the watch-list from a JSON document on disk. Entries
// that can't be used are logged and skipped; only a document that can't be
// read or parsed as a whole fails the load.
type FileLoader struct {
	Path   string
	Logger *slog.Logger
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) Load(_ context.Context) ([]domain.KnownFace, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrLoad, l.Path, err)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return decodeFile(data, logger.With("path", l.Path))
}

func decodeFile(data []byte, logger *slog.Logger) ([]domain.KnownFace, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrLoad, err)
	}

	faces := make([]domain.KnownFace, 0, len(raw))
	for urn, msg := range raw {
		var e fileEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			logger.Warn("skipping malformed watch-list entry",
				slog.String("urn", urn),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(e.Embedding) == 0 {
			logger.Warn("skipping watch-list entry without embedding", slog.String("urn", urn))
			continue
		}
		faces = append(faces, domain.KnownFace{
			URN:       urn,
			Embedding: e.Embedding,
			Details:   e.Details,
		})
	}
	return faces, nil
}

// WriteFile persists faces in the format FileLoader reads.
func WriteFile(path string, faces []domain.KnownFace) error {
	entries := make(map[string]fileEntry, len(faces))
	for _, f := range faces {
		entries[f.URN] = fileEntry{Embedding: f.Embedding, Details: f.Details}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	return nil
}
