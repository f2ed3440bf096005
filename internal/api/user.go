package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Type     string `json:"type"`
}

type signupResponse struct {
	UserID string `json:"userId"`
}

// Signup registers a new account. The "type" field selects the role;
// it defaults to "user" when omitted.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}
	role := req.Type
	if role == "" {
		role = postgres.RoleUser
	}

	acct, err := h.accounts.Create(r.Context(), req.Username, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrAccountExists):
			writeError(w, r, http.StatusBadRequest, "username already taken")
		case errors.Is(err, postgres.ErrInvalidRole):
			writeError(w, r, http.StatusBadRequest, "invalid account type")
		default:
			h.logger.Error("creating account", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	render.JSON(w, r, signupResponse{UserID: acct.ID})
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
}

// Signin verifies credentials and returns a session token. Bad credentials
// get 403 rather than 401, matching the platform's client contract.
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) || errors.Is(err, postgres.ErrInvalidCredentials) {
			writeError(w, r, http.StatusForbidden, "invalid credentials")
			return
		}
		h.logger.Error("authenticating account", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.tokens.Issue(acct.ID, acct.Role)
	if err != nil {
		h.logger.Error("issuing token", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, signinResponse{Token: token})
}

type updateMetadataRequest struct {
	AvatarID string `json:"avatarId"`
}

// UpdateMetadata assigns an avatar to the authenticated account.
func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusForbidden, "unauthenticated")
		return
	}

	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AvatarID == "" {
		writeError(w, r, http.StatusBadRequest, "avatarId is required")
		return
	}

	if err := h.accounts.SetAvatar(r.Context(), claims.UserID, req.AvatarID); err != nil {
		switch {
		case errors.Is(err, postgres.ErrAvatarNotFound):
			writeError(w, r, http.StatusBadRequest, "unknown avatar")
		case errors.Is(err, postgres.ErrAccountNotFound):
			writeError(w, r, http.StatusBadRequest, "unknown account")
		default:
			h.logger.Error("updating avatar", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	render.JSON(w, r, render.M{})
}

type userMetadata struct {
	UserID   string  `json:"userId"`
	ImageURL *string `json:"imageUrl"`
}

type bulkMetadataResponse struct {
	Avatars []userMetadata `json:"avatars"`
}

// BulkMetadata returns avatar urls for the accounts named by the ids query
// parameter, formatted as "[id1,id2]". Unknown ids are silently omitted.
func (h *Handler) BulkMetadata(w http.ResponseWriter, r *http.Request) {
	ids := parseIDList(r.URL.Query().Get("ids"))

	metas, err := h.accounts.MetadataBulk(r.Context(), ids)
	if err != nil {
		h.logger.Error("bulk metadata lookup", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := bulkMetadataResponse{Avatars: make([]userMetadata, 0, len(metas))}
	for _, m := range metas {
		resp.Avatars = append(resp.Avatars, userMetadata{UserID: m.ID, ImageURL: m.AvatarURL})
	}
	render.JSON(w, r, resp)
}

type avatarView struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Name     string `json:"name"`
}

type listAvatarsResponse struct {
	Avatars []avatarView `json:"avatars"`
}

// ListAvatars returns every selectable avatar.
func (h *Handler) ListAvatars(w http.ResponseWriter, r *http.Request) {
	avatars, err := h.avatars.List(r.Context())
	if err != nil {
		h.logger.Error("listing avatars", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := listAvatarsResponse{Avatars: make([]avatarView, 0, len(avatars))}
	for _, av := range avatars {
		resp.Avatars = append(resp.Avatars, avatarView{ID: av.ID, ImageURL: av.ImageURL, Name: av.Name})
	}
	render.JSON(w, r, resp)
}

type elementView struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Static   bool   `json:"static"`
}

type listElementsResponse struct {
	Elements []elementView `json:"elements"`
}

// ListElements returns every element definition.
func (h *Handler) ListElements(w http.ResponseWriter, r *http.Request) {
	elements, err := h.elements.List(r.Context())
	if err != nil {
		h.logger.Error("listing elements", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := listElementsResponse{Elements: make([]elementView, 0, len(elements))}
	for _, el := range elements {
		resp.Elements = append(resp.Elements, elementView{
			ID: el.ID, ImageURL: el.ImageURL, Width: el.Width, Height: el.Height, Static: el.Static,
		})
	}
	render.JSON(w, r, resp)
}
