package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed document id such as "trf-3f2a9c1e8b7d4e0fa1c2d3e4f5a6b7c8".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
