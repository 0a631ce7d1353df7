package v1

import (
	"net/http"

	"github.com/tinoosan/loanledger/internal/dictionary"
)

// GET /v1/dictionary/frequencies
func (s *Server) getFrequencies(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.FrequencyDef `json:"items"`
	}{Items: dictionary.Frequencies()})
}

// GET /v1/dictionary/categories
func (s *Server) getCategories(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: dictionary.Categories()})
}
