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

type createSpaceRequest struct {
	Name       string `json:"name"`
	Dimensions string `json:"dimensions"`
	MapID      string `json:"mapId"`
}

type createSpaceResponse struct {
	SpaceID string `json:"spaceId"`
}

// CreateSpace creates a space for the authenticated user, either blank from
// explicit dimensions or seeded from a map template.
func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	var req createSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	var sp postgres.Space
	var err error
	switch {
	case req.MapID != "":
		sp, err = h.spaces.CreateFromMap(r.Context(), claims.UserID, req.Name, req.MapID)
	case req.Dimensions != "":
		var width, height int
		width, height, err = parseDimensions(req.Dimensions)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		sp, err = h.spaces.Create(r.Context(), claims.UserID, req.Name, width, height)
	default:
		writeError(w, r, http.StatusBadRequest, "either mapId or dimensions is required")
		return
	}
	if err != nil {
		if errors.Is(err, postgres.ErrMapNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown map")
			return
		}
		h.logger.Error("creating space", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, createSpaceResponse{SpaceID: sp.ID})
}

// DeleteSpace removes a space. Deleting another user's space gets 403.
func (h *Handler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	spaceID := chi.URLParam(r, "spaceID")

	err := h.spaces.Delete(r.Context(), spaceID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrSpaceNotFound):
			writeError(w, r, http.StatusBadRequest, "unknown space")
		case errors.Is(err, postgres.ErrNotSpaceOwner):
			writeError(w, r, http.StatusForbidden, "not the space owner")
		default:
			h.logger.Error("deleting space", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	render.JSON(w, r, render.M{})
}

type spaceSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Thumbnail  *string `json:"thumbnail"`
	Dimensions string  `json:"dimensions"`
}

type listSpacesResponse struct {
	Spaces []spaceSummary `json:"spaces"`
}

// ListSpaces returns the authenticated user's spaces.
func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	spaces, err := h.spaces.ListByOwner(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("listing spaces", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := listSpacesResponse{Spaces: make([]spaceSummary, 0, len(spaces))}
	for _, sp := range spaces {
		resp.Spaces = append(resp.Spaces, spaceSummary{
			ID:         sp.ID,
			Name:       sp.Name,
			Thumbnail:  sp.Thumbnail,
			Dimensions: formatDimensions(sp.Width, sp.Height),
		})
	}
	render.JSON(w, r, resp)
}

type placedElementView struct {
	ID      string      `json:"id"`
	Element elementView `json:"element"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
}

type getSpaceResponse struct {
	Dimensions string              `json:"dimensions"`
	Elements   []placedElementView `json:"elements"`
}

// GetSpace returns a space's dimensions and placed elements.
func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")

	sp, err := h.spaces.Get(r.Context(), spaceID)
	if err != nil {
		if errors.Is(err, postgres.ErrSpaceNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown space")
			return
		}
		h.logger.Error("getting space", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := getSpaceResponse{
		Dimensions: formatDimensions(sp.Width, sp.Height),
		Elements:   make([]placedElementView, 0, len(sp.Elements)),
	}
	for _, se := range sp.Elements {
		resp.Elements = append(resp.Elements, placedElementView{
			ID: se.ID,
			Element: elementView{
				ID:       se.Element.ID,
				ImageURL: se.Element.ImageURL,
				Width:    se.Element.Width,
				Height:   se.Element.Height,
				Static:   se.Element.Static,
			},
			X: se.X,
			Y: se.Y,
		})
	}
	render.JSON(w, r, resp)
}

type addSpaceElementRequest struct {
	SpaceID   string `json:"spaceId"`
	ElementID string `json:"elementId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

// AddSpaceElement places an element in a space.
func (h *Handler) AddSpaceElement(w http.ResponseWriter, r *http.Request) {
	var req addSpaceElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SpaceID == "" || req.ElementID == "" {
		writeError(w, r, http.StatusBadRequest, "spaceId and elementId are required")
		return
	}

	id, err := h.spaces.AddElement(r.Context(), req.SpaceID, req.ElementID, req.X, req.Y)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrSpaceNotFound),
			errors.Is(err, postgres.ErrElementNotFound),
			errors.Is(err, postgres.ErrPlacementOutOfBounds),
			errors.Is(err, postgres.ErrPlacementOverlap):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("adding space element", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	render.JSON(w, r, render.M{"id": id})
}

type removeSpaceElementRequest struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId"`
}

// RemoveSpaceElement deletes a placed element from a space.
func (h *Handler) RemoveSpaceElement(w http.ResponseWriter, r *http.Request) {
	var req removeSpaceElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.SpaceID == "" {
		writeError(w, r, http.StatusBadRequest, "id and spaceId are required")
		return
	}

	if err := h.spaces.RemoveElement(r.Context(), req.SpaceID, req.ID); err != nil {
		if errors.Is(err, postgres.ErrSpaceElementNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown placement")
			return
		}
		h.logger.Error("removing space element", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, render.M{})
}
