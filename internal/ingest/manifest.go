package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Manifest lists the documents to ingest. It replaces the original
// spreadsheet-driven inventory with a JSON file checked into the data repo.
type Manifest struct {
	Documents []ManifestEntry `json:"documents" validate:"required,min=1,dive"`
}

// ManifestEntry describes one source document.
type ManifestEntry struct {
	Name        string `json:"name" validate:"required"`
	Source      string `json:"source" validate:"required"`
	URL         string `json:"url" validate:"omitempty,url"`
	Date        string `json:"date"`
	Path        string `json:"path" validate:"required"`
	ContentType string `json:"content_type" validate:"omitempty"`
}

var validate = validator.New()

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}
