package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation   = "23505"
	codeInvalidTextRepr   = "22P02"
	constraintTokensValue = "tokens_value_key"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeUniqueViolation
}

// isMalformedID reports a uuid column compared with a non-uuid string. For
// lookups that is the same as a missing row.
func isMalformedID(err error) bool {
	code, _ := pgCode(err)
	return code == codeInvalidTextRepr
}
