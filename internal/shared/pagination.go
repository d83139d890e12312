package shared

import (
	"net/url"
	"strconv"
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// PageFromQuery reads limit and offset query parameters, falling back to
// defaults on missing or malformed values.
func PageFromQuery(values url.Values, defaultLimit, maxLimit int) Page {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	page := Page{Limit: defaultLimit}
	if v, err := strconv.Atoi(values.Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	if v, err := strconv.Atoi(values.Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	return page
}
