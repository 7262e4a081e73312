package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linksaver/linksaver/internal/links"
)

// CreateLinkRequest represents a link to save
type CreateLinkRequest struct {
	URL          string  `json:"url"`
	Source       *string `json:"source"`
	Title        *string `json:"title"`
	Category     *string `json:"category"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

// HandleCreateLink saves a link for the authenticated user. Metadata
// resolution happens inline, so the response already carries whatever
// title and thumbnail could be found.
func HandleCreateLink(svc *links.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		user := UserFromContext(r.Context())
		link, err := svc.Create(r.Context(), user.ID, links.CreateInput{
			URL:          req.URL,
			Source:       req.Source,
			Title:        req.Title,
			Category:     req.Category,
			ThumbnailURL: req.ThumbnailURL,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusCreated, "Link saved successfully", map[string]any{"link": link})
	}
}

// HandleGetLinks lists the authenticated user's links, filtered by the
// search, source and category query parameters.
func HandleGetLinks(svc *links.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		query := r.URL.Query()

		list, err := svc.List(r.Context(), user.ID, links.ListOptions{
			Search:   query.Get("search"),
			Source:   query.Get("source"),
			Category: query.Get("category"),
		})
		if err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK, "Links retrieved successfully", map[string]any{"links": list})
	}
}

// HandleGetLink returns one of the authenticated user's links.
func HandleGetLink(svc *links.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		link, err := svc.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK, "Link retrieved successfully", map[string]any{"link": link})
	}
}

// HandleDeleteLink removes one of the authenticated user's links.
func HandleDeleteLink(svc *links.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		if err := svc.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK, "Link deleted successfully", nil)
	}
}
