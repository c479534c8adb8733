// Package skunorm implements the SKU normalizer (C1): the single function
// through which every raw SKU string is canonicalized before it touches the
// inventory store.
package skunorm

import "strings"

// Normalize lowercases and trims a raw SKU string. Empty or all-whitespace
// input normalizes to the empty string. Every read and write of a sku_id
// elsewhere in this module passes through Normalize first.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
