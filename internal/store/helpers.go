package store

import (
	"database/sql"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// MarshalList converts []string to JSON text for storage.
func MarshalList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// UnmarshalList converts JSON text back to []string.
func UnmarshalList(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	return list
}

// str returns the string of a nullable column, or "".
func str(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
