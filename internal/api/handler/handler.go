// Package handler implements the HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/story"
)

const timeFormat = "2006-01-02T15:04:05Z"

// Backend supplies the current backend connection. Handlers fetch it on every
// request so a reconnect takes effect immediately.
type Backend interface {
	Current() *backend.Client
}

// pathID parses the {id} URL parameter, writing a 400 when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidID, "id must be a valid UUID", requestID)
		return uuid.Nil, false
	}
	return id, true
}

// listFilter reads the story filters and pagination from the query string,
// writing a 400 on a malformed page or limit.
func listFilter(w http.ResponseWriter, r *http.Request, requestID string) (story.ListFilter, bool) {
	q := r.URL.Query()
	filter := story.ListFilter{Page: 1, Limit: 20}

	for key, dst := range map[string]**string{
		"language": &filter.Language,
		"country":  &filter.Country,
		"theme":    &filter.Theme,
		"search":   &filter.Search,
	} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			*dst = &v
		}
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidParam, "page must be a positive integer", requestID)
			return filter, false
		}
		filter.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidParam, "limit must be a positive integer", requestID)
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}
