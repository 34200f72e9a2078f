package udf

import "github.com/jackc/pgx/v5/pgtype"

// Text wraps s as a present text value.
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: true}
}

// FormatResult renders b the way psql does for booleans, with NULL for unknown.
func FormatResult(b pgtype.Bool) string {
	switch {
	case !b.Valid:
		return "NULL"
	case b.Bool:
		return "true"
	default:
		return "false"
	}
}
