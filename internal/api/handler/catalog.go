package handler

import (
	"net/http"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/story"
)

type catalogResponse struct {
	Languages []string `json:"languages"`
	Countries []string `json:"countries"`
	Themes    []string `json:"themes"`
}

// Catalog handles GET /catalog.
func Catalog(w http.ResponseWriter, r *http.Request) {
	c := story.DefaultCatalog()
	response.Success(w, http.StatusOK, catalogResponse{
		Languages: c.Languages,
		Countries: c.Countries,
		Themes:    c.Themes,
	}, middleware.GetRequestID(r.Context()))
}
