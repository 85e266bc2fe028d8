package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// erDupEntry is MySQL's ER_DUP_ENTRY.
const erDupEntry = 1062

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports whether err is a duplicate-key error and names the
// violated key, e.g. "submissions.PRIMARY".
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != erDupEntry {
		return "", false
	}
	return duplicateKeyName(myErr.Message), true
}

// duplicateKeyName extracts the key from "Duplicate entry '...' for key '...'".
func duplicateKeyName(message string) string {
	idx := strings.LastIndex(message, "for key ")
	if idx == -1 {
		return ""
	}
	return strings.Trim(message[idx+len("for key "):], " `\"'")
}
