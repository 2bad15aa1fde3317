package ingest

import (
	"time"

	"github.com/mongolog/ingest-server/internal/batch"
)

// Record is one normalized output document: the free-form log fields plus
// the fixed metadata keys below. Parse failures carry "originalLine" and
// "parseError" instead of the log fields. Records are write-once: nothing
// mutates one after Normalize returns it.
type Record map[string]interface{}

// Metadata field names stamped onto every record. The downstream analytics
// layer depends on these names; do not rename.
const (
	FieldSourceFile     = "sourceFile"
	FieldUploadDate     = "uploadDate"
	FieldBatchID        = "batchId"
	FieldLineNumber     = "lineNumber"
	FieldClassification = "classification"
	FieldVersionTag     = "versionTag"
	FieldUserName       = "userName"
	FieldUserEmail      = "userEmail"
	FieldUserID         = "userId"

	FieldLogTimestamp   = "logTimestamp"
	FieldQueryStartTime = "queryStartTime"
	FieldOriginalLine   = "originalLine"
	FieldParseError     = "parseError"
)

// Metadata is the per-line context attached to every record a file produces.
type Metadata struct {
	SourceFile     string
	UploadDate     time.Time
	BatchID        string
	LineNumber     int
	Classification string
	VersionTag     string
	Owner          batch.Owner
}

// IsParseFailure reports whether a record is the parse-failure variant.
func (r Record) IsParseFailure() bool {
	v, ok := r[FieldParseError].(bool)
	return ok && v
}

func (m Metadata) attach(r Record) {
	r[FieldSourceFile] = m.SourceFile
	r[FieldUploadDate] = m.UploadDate
	r[FieldBatchID] = m.BatchID
	r[FieldLineNumber] = m.LineNumber
	r[FieldClassification] = m.Classification
	r[FieldVersionTag] = m.VersionTag
	r[FieldUserName] = m.Owner.Name
	r[FieldUserEmail] = m.Owner.Email
	r[FieldUserID] = m.Owner.UserID
}
