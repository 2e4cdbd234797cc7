package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateNamespace returns the installation's vector-store namespace.
//
// The namespace is an opaque identifier generated exactly once per
// installation and persisted for its lifetime; every vector operation is
// scoped to it. If path holds a non-empty value it is returned, otherwise a
// fresh identifier is generated and written to path.
func LoadOrCreateNamespace(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns, nil
		}
	}

	ns := uuid.NewString()
	if err := os.WriteFile(path, []byte(ns+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist namespace: %w", err)
	}
	return ns, nil
}
