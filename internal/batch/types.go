package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Status represents the status of an upload batch
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// File classifications declared by the uploader.
const (
	ClassificationPrimary   = "primary"
	ClassificationSecondary = "secondary"
)

// Owner identifies the user who submitted a batch.
type Owner struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

// FileJob is one file within an upload batch.
type FileJob struct {
	OriginalName   string
	CleanedName    string
	Gzipped        bool
	Classification string
	VersionTag     string

	// TempPath is the spooled payload on disk. The file worker that
	// processes this job owns it and removes it on every exit path.
	TempPath string
}

// NewFileJob builds a FileJob from upload metadata. The compression flag is
// derived from the filename suffix, the cleaned name by truncating at the
// first dot. versionTag falls back to the batch-wide tag when the per-file
// override is empty.
func NewFileJob(originalName, classification, versionTag, batchVersionTag, tempPath string) FileJob {
	if classification != ClassificationSecondary {
		classification = ClassificationPrimary
	}
	if versionTag == "" {
		versionTag = batchVersionTag
	}
	return FileJob{
		OriginalName:   originalName,
		CleanedName:    CleanFileName(originalName),
		Gzipped:        strings.HasSuffix(strings.ToLower(originalName), ".gz"),
		Classification: classification,
		VersionTag:     versionTag,
		TempPath:       tempPath,
	}
}

// CleanFileName derives the logical source-file key: the filename normalized
// to NFC and truncated at the first dot ("mongod.log.gz" -> "mongod").
func CleanFileName(name string) string {
	name = norm.NFC.String(name)
	if i := strings.Index(name, "."); i != -1 {
		return name[:i]
	}
	return name
}

// UploadBatch is one user-initiated submission. It is created at submission
// time and immutable thereafter; its ID is stamped onto every record the
// batch produces.
type UploadBatch struct {
	ID         string
	Owner      Owner
	VersionTag string
	CreatedAt  time.Time
	Files      []FileJob
}

// NewID generates a batch identifier: creation time plus a random suffix.
func NewID(now time.Time) string {
	return now.UTC().Format(time.RFC3339) + "_" + uuid.NewString()[:8]
}

// Validation errors returned by Validate. The HTTP layer maps them to
// response codes.
var (
	ErrOwnerMissing      = errors.New("owner identity (email, userId) is required")
	ErrVersionTagMissing = errors.New("version tag is required")
	ErrNoFiles           = errors.New("batch contains no files")
)

// Validate rejects a batch before any file processing begins.
func Validate(b *UploadBatch) error {
	if b.Owner.Email == "" || b.Owner.UserID == "" {
		return ErrOwnerMissing
	}
	if b.VersionTag == "" {
		return ErrVersionTagMissing
	}
	if len(b.Files) == 0 {
		return ErrNoFiles
	}
	for _, f := range b.Files {
		if f.Classification != ClassificationPrimary && f.Classification != ClassificationSecondary {
			return fmt.Errorf("file %s: invalid classification %q", f.OriginalName, f.Classification)
		}
	}
	return nil
}

// FileResult is the terminal outcome of processing one FileJob.
type FileResult struct {
	FileName       string `json:"filename"`
	CleanedName    string `json:"cleanedFilename"`
	Classification string `json:"classification"`
	Success        bool   `json:"success"`
	EntriesCreated int    `json:"entriesCreated"`
	LinesProcessed int    `json:"linesProcessed"`
	ErrorCode      string `json:"error,omitempty"`
	ErrorMessage   string `json:"message,omitempty"`
}

// BatchResult aggregates the outcome of a whole batch run.
type BatchResult struct {
	BatchID         string       `json:"batchId"`
	TotalFiles      int          `json:"totalFiles"`
	SuccessfulFiles int          `json:"successfulFiles"`
	FailedFiles     int          `json:"failedFiles"`
	EntriesCreated  int          `json:"entriesCreated"`
	ParseErrors     int          `json:"parseErrors"`
	FileResults     []FileResult `json:"fileResults"`

	// Persisted reports whether the bulk write succeeded. When it is false
	// the per-file parse statistics above are still valid ("parsed but not
	// persisted").
	Persisted     bool          `json:"persisted"`
	InsertedCount int           `json:"insertedCount"`
	InsertedIDs   []interface{} `json:"insertedIds,omitempty"`
	LoadError     string        `json:"loadError,omitempty"`
}

// Batch is the stored state of a submitted batch: the immutable submission
// plus mutable processing state owned by the Store.
type Batch struct {
	UploadBatch

	Status         Status
	StartedAt      *time.Time
	FinishedAt     *time.Time
	FilesProcessed int
	EntriesCreated int64
	LinesProcessed int64
	LastError      string
	Result         *BatchResult
}
