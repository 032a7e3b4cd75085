package controller

import (
	"errors"
	"net/http"
	"strconv"
)

const (
	defaultLatestLimit = 100
	maxLatestLimit     = 1000
)

func parseLatestQuery(r *http.Request) (limit int, err error) {
	q := r.URL.Query()
	limit = defaultLatestLimit
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > maxLatestLimit {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}
