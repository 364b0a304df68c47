// Package export renders a project's approval report as HTML or PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request selects the project and output format.
type Request struct {
	ProjectID int64
	Format    Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Decision is one ledger row as shown in the report.
type Decision struct {
	Role      string
	UserName  string
	FileType  string
	Status    string
	Stage     int
	Comments  string
	CreatedAt time.Time
}

type Version struct {
	FileType   string
	Version    int
	UploadedBy string
	CreatedAt  time.Time
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
