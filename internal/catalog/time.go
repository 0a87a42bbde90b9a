package catalog

import (
	"database/sql"
	"errors"
	"time"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
