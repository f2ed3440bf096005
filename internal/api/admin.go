package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

type createElementRequest struct {
	ImageURL string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Static   bool   `json:"static"`
}

// CreateElement registers a new element definition. Admin only.
func (h *Handler) CreateElement(w http.ResponseWriter, r *http.Request) {
	var req createElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
		writeError(w, r, http.StatusBadRequest, "imageUrl is required")
		return
	}
	if req.Width < 1 || req.Height < 1 {
		writeError(w, r, http.StatusBadRequest, "width and height must be positive")
		return
	}

	el, err := h.elements.Create(r.Context(), req.ImageURL, req.Width, req.Height, req.Static)
	if err != nil {
		h.logger.Error("creating element", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, render.M{"id": el.ID})
}

type updateElementRequest struct {
	ImageURL string `json:"imageUrl"`
}

// UpdateElement replaces an element's image. Admin only.
func (h *Handler) UpdateElement(w http.ResponseWriter, r *http.Request) {
	elementID := chi.URLParam(r, "elementID")

	var req updateElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
		writeError(w, r, http.StatusBadRequest, "imageUrl is required")
		return
	}

	if err := h.elements.UpdateImage(r.Context(), elementID, req.ImageURL); err != nil {
		if errors.Is(err, postgres.ErrElementNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown element")
			return
		}
		h.logger.Error("updating element", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, render.M{})
}

type createAvatarRequest struct {
	ImageURL string `json:"imageUrl"`
	Name     string `json:"name"`
}

// CreateAvatar registers a new avatar. Admin only.
func (h *Handler) CreateAvatar(w http.ResponseWriter, r *http.Request) {
	var req createAvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" || req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "imageUrl and name are required")
		return
	}

	av, err := h.avatars.Create(r.Context(), req.Name, req.ImageURL)
	if err != nil {
		h.logger.Error("creating avatar", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, render.M{"avatarId": av.ID})
}

type mapPlacementRequest struct {
	ElementID string `json:"elementId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

type createMapRequest struct {
	Thumbnail       string                `json:"thumbnail"`
	Dimensions      string                `json:"dimensions"`
	Name            string                `json:"name"`
	DefaultElements []mapPlacementRequest `json:"defaultElements"`
}

// CreateMap registers a new map template with its default element
// placements. Admin only.
func (h *Handler) CreateMap(w http.ResponseWriter, r *http.Request) {
	var req createMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	width, height, err := parseDimensions(req.Dimensions)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	placements := make([]postgres.MapPlacement, 0, len(req.DefaultElements))
	for _, p := range req.DefaultElements {
		placements = append(placements, postgres.MapPlacement{ElementID: p.ElementID, X: p.X, Y: p.Y})
	}

	m, err := h.maps.Create(r.Context(), req.Name, req.Thumbnail, width, height, placements)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrElementNotFound):
			writeError(w, r, http.StatusBadRequest, "unknown element in defaultElements")
		case errors.Is(err, postgres.ErrPlacementOutOfBounds):
			writeError(w, r, http.StatusBadRequest, "element placement out of bounds")
		default:
			h.logger.Error("creating map", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	render.JSON(w, r, render.M{"id": m.ID})
}
