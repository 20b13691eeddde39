package handler

import (
	"net/http"

	"github.com/hitoshi/ethergreen/internal/catalog"
	"github.com/hitoshi/ethergreen/internal/model"
)

type catalogSearchResponse struct {
	Results []catalog.Entry `json:"results"`
	Total   int             `json:"total"`
}

// SearchCatalog はペプチド・ハーブ・周波数のカタログを検索する。
// GET /api/database/search?query=&category=all
func SearchCatalog(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	category := r.URL.Query().Get("category")
	if category == "" {
		category = catalog.TypeAll
	}
	if !catalog.IsValidType(category) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("category must be one of all, peptides, herbs, frequencies"))
		return
	}

	results := catalog.Search(query, category)
	writeJSON(w, http.StatusOK, catalogSearchResponse{Results: results, Total: len(results)})
}
