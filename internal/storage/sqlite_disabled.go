//go:build !sqlite

package storage

import (
	"fmt"

	logx "msgsim/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = log
	return nil, fmt.Errorf("sqlite storage not built (path %q): build with -tags sqlite", cfg.Path)
}
