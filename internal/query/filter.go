// Package query builds SQL predicates for the generic filtered list the
// update engine and external callers use: wildcard matching over any
// s3_object column plus JSON-path matchers over the attributes document.
// It produces a WHERE clause and bind arguments; it never talks to the
// database itself.
package query

import (
	"fmt"
	"strings"

	"github.com/orcabus/filemanager/internal/apperrors"
)

// Column identifies a filterable s3_object column by its API-facing name.
type Column string

const (
	ColumnBucket         Column = "bucket"
	ColumnKey            Column = "key"
	ColumnVersionID      Column = "versionId"
	ColumnEventType      Column = "eventType"
	ColumnSequencer      Column = "sequencer"
	ColumnStorageClass   Column = "storageClass"
	ColumnArchiveStatus  Column = "archiveStatus"
	ColumnReason         Column = "reason"
	ColumnETag           Column = "eTag"
	ColumnSha256         Column = "sha256"
	ColumnIsDeleteMarker Column = "isDeleteMarker"
)

// sqlColumn maps the API-facing column name to the underlying s3_object
// column, the one place the filter is tied to the schema in rows.go.
var sqlColumn = map[Column]string{
	ColumnBucket:         "bucket",
	ColumnKey:            "object_key",
	ColumnVersionID:      "version_id",
	ColumnEventType:      "event_type",
	ColumnSequencer:      "sequencer",
	ColumnStorageClass:   "storage_class",
	ColumnArchiveStatus:  "archive_status",
	ColumnReason:         "reason",
	ColumnETag:           "e_tag",
	ColumnSha256:         "sha256",
	ColumnIsDeleteMarker: "is_delete_marker",
}

// ColumnMatch matches one column against one or more wildcard patterns,
// OR'd together, the way a repeated query parameter does.
type ColumnMatch struct {
	Column   Column
	Patterns []string
}

// AttributeMatch matches a dot-separated path into the attributes JSON
// document against one or more wildcard patterns.
type AttributeMatch struct {
	Path     string
	Patterns []string
}

// Filter is the full predicate for a filtered list: every ColumnMatch and
// AttributeMatch is AND'd together; the Patterns within each are OR'd.
type Filter struct {
	Columns       []ColumnMatch
	Attributes    []AttributeMatch
	CaseSensitive bool
	CurrentOnly   bool
}

// BuildWhere renders the filter into a SQL WHERE clause body (without the
// leading "WHERE") and its positional bind arguments. An empty Filter with
// CurrentOnly unset renders "1=1" so callers can always append it.
func (f Filter) BuildWhere() (string, []any, error) {
	var clauses []string
	var args []any

	for _, cm := range f.Columns {
		col, ok := sqlColumn[cm.Column]
		if !ok {
			return "", nil, apperrors.New(apperrors.KindInvalidQuery, fmt.Sprintf("unknown filter column %q", cm.Column))
		}
		clause, clauseArgs, err := orLike(col, cm.Patterns, f.CaseSensitive)
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	for _, am := range f.Attributes {
		if am.Path == "" {
			return "", nil, apperrors.New(apperrors.KindInvalidQuery, "attribute filter path must not be empty")
		}
		expr := fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(attributes, '$.%s'))", jsonPathSegment(am.Path))
		clause, clauseArgs, err := orLikeExpr(expr, am.Patterns, f.CaseSensitive)
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	if f.CurrentOnly {
		clauses = append(clauses, "is_current_state = TRUE")
	}

	if len(clauses) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

// jsonPathSegment strips single quotes, which would let a path escape the
// JSON_EXTRACT path expression it is interpolated into.
func jsonPathSegment(path string) string {
	return strings.ReplaceAll(path, "'", "")
}

func orLike(column string, patterns []string, caseSensitive bool) (string, []any, error) {
	return orLikeExpr(column, patterns, caseSensitive)
}

// orLikeExpr builds "(expr LIKE ? OR expr LIKE ? ...)" for a set of
// wildcard patterns, lower-casing both sides when the match is
// case-insensitive so behavior doesn't depend on the column's collation.
func orLikeExpr(expr string, patterns []string, caseSensitive bool) (string, []any, error) {
	if len(patterns) == 0 {
		return "", nil, nil
	}
	lhs := expr
	if !caseSensitive {
		lhs = "LOWER(" + expr + ")"
	}

	var parts []string
	var args []any
	for _, p := range patterns {
		like := translateWildcard(p)
		if !caseSensitive {
			like = strings.ToLower(like)
		}
		parts = append(parts, lhs+" LIKE ? ESCAPE '\\\\'")
		args = append(args, like)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}

// translateWildcard converts a caller-facing glob pattern ('*' any run of
// characters, '?' any single character) into a SQL LIKE pattern, escaping
// any literal '%', '_' or '\' already present in the pattern so they are
// matched literally rather than as LIKE metacharacters.
func translateWildcard(pattern string) string {
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '%':
			sb.WriteString(`\%`)
		case '_':
			sb.WriteString(`\_`)
		case '*':
			sb.WriteByte('%')
		case '?':
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
