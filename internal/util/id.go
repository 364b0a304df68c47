package util

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewBlobName returns "<prefix>_<uuid><ext>" keeping the extension of the
// original filename, lowercased.
func NewBlobName(prefix, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return NewID(prefix) + ext
}
