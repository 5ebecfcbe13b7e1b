package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Index field names for consistent references in queries, filters and mappings.
const (
	FieldID            = "id"
	FieldRepositoryID  = "repositoryId"
	FieldFilePath      = "filePath"
	FieldFileName      = "fileName"
	FieldFileExtension = "fileExtension"
	FieldLanguage      = "language"
	FieldContent       = "content"
	FieldLineCount     = "lineCount"
	FieldSizeInBytes   = "sizeInBytes"
	FieldLastModified  = "lastModified"
	FieldBranchName    = "branchName"
	FieldDocumentType  = "documentType"

	FieldRepositoryName  = "metadata.repositoryName"
	FieldRepositoryOwner = "metadata.repositoryOwner"
	FieldRepositoryURL   = "metadata.repositoryUrl"
	FieldCodeSymbols     = "metadata.codeSymbols"
)

// FieldKind determines which filter operators a field accepts and how values
// are parsed.
type FieldKind int

const (
	// KindKeyword fields are exact, case-sensitive strings.
	KindKeyword FieldKind = iota
	// KindText fields are analyzed; only "contains" applies.
	KindText
	// KindNumber fields take decimal values.
	KindNumber
	// KindDate fields take RFC 3339 timestamps.
	KindDate
)

var filterableFields = map[string]FieldKind{
	FieldID:              KindKeyword,
	FieldRepositoryID:    KindKeyword,
	FieldFilePath:        KindKeyword,
	FieldFileName:        KindKeyword,
	FieldFileExtension:   KindKeyword,
	FieldLanguage:        KindKeyword,
	FieldBranchName:      KindKeyword,
	FieldDocumentType:    KindKeyword,
	FieldRepositoryName:  KindKeyword,
	FieldRepositoryOwner: KindKeyword,
	FieldRepositoryURL:   KindKeyword,
	FieldCodeSymbols:     KindKeyword,
	FieldContent:         KindText,
	FieldLineCount:       KindNumber,
	FieldSizeInBytes:     KindNumber,
	FieldLastModified:    KindDate,
}

// LookupField returns the kind of a filterable field.
func LookupField(name string) (FieldKind, bool) {
	kind, ok := filterableFields[name]
	return kind, ok
}

// FilterableFields returns the names of all filterable fields, sorted.
func FilterableFields() []string {
	names := make([]string, 0, len(filterableFields))
	for name := range filterableFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsFacetable reports whether a field can be used for facet counts.
func IsFacetable(name string) bool {
	kind, ok := filterableFields[name]
	return ok && kind == KindKeyword && name != FieldID
}

// Accepts reports whether op is meaningful for the kind.
func (k FieldKind) Accepts(op FilterOperator) bool {
	switch k {
	case KindKeyword:
		return op.IsValid()
	case KindText:
		return op == OpContains
	case KindNumber, KindDate:
		return op == OpEq || op == OpNe || op == OpGt || op == OpLt
	}
	return false
}

// ValidateFilter checks that the field is filterable, accepts the operator
// and that the value parses for the field's kind.
func ValidateFilter(f SearchFilter) error {
	kind, ok := LookupField(f.Field)
	if !ok {
		return NewInvalidQueryError("unknown filter field %q", f.Field)
	}
	if !f.Operator.IsValid() {
		return NewInvalidQueryError("unknown operator %q on field %q", f.Operator, f.Field)
	}
	if !kind.Accepts(f.Operator) {
		return NewInvalidQueryError("operator %q is not supported on field %q", f.Operator, f.Field)
	}
	switch kind {
	case KindNumber:
		if _, err := strconv.ParseFloat(f.Value, 64); err != nil {
			return NewInvalidQueryError("field %q requires a number, got %q", f.Field, f.Value)
		}
	case KindDate:
		if _, err := time.Parse(time.RFC3339, f.Value); err != nil {
			return NewInvalidQueryError("field %q requires an RFC 3339 timestamp, got %q", f.Field, f.Value)
		}
	case KindText:
		if strings.TrimSpace(f.Value) == "" {
			return NewInvalidQueryError("field %q requires a non-empty value", f.Field)
		}
	}
	return nil
}
