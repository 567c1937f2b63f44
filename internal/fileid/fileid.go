// Package fileid derives document IDs for files read from disk.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "path:"

// DocID returns the document ID for the file at absolutePath within tenant. The same
// tenant and cleaned path always yield the same ID, so a watched file can be replaced or
// removed without knowing the ID it was stored under. Tenants never share IDs.
func DocID(tenant, absolutePath string) string {
	h := sha256.New()
	h.Write([]byte(tenant))
	h.Write([]byte{0})
	h.Write([]byte(filepath.Clean(absolutePath)))
	return prefix + hex.EncodeToString(h.Sum(nil))
}
