//go:build !sqlite

package store

import (
	"context"
	"fmt"
)

func newSQLiteStore(_ context.Context, _ string) (Archive, error) {
	return nil, fmt.Errorf("sqlite backend unavailable in this build; rebuild with -tags sqlite")
}
