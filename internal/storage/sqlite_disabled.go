//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "dailybot/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (DocStore, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite storage not built: build with -tags sqlite")
}
