package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/figpins/bridge/auth"
	"github.com/figpins/bridge/ingest"
	"github.com/figpins/bridge/model"
	"github.com/figpins/bridge/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	publishMethodAPI    = "api"
	publishMethodLegacy = "legacy"

	defaultImageDimension = 1200
	minRoomIDLength       = 4
)

type (
	genericResponse struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}

	tokenResponse struct {
		Success      bool   `json:"success"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope,omitempty"`
	}

	credentialBody struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token,omitempty"`
		ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	}

	publishResponse struct {
		Success    bool            `json:"success"`
		Error      string          `json:"error,omitempty"`
		Credential *credentialBody `json:"credential,omitempty"`
	}

	sendPinRequest struct {
		RoomID       string `json:"roomId"`
		PinID        string `json:"pinId"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken,omitempty"`
		ExpiresAt    int64  `json:"expiresAt,omitempty"` // unix seconds
	}

	sendImageRequest struct {
		RoomID string `json:"roomId"`
		URL    string `json:"url"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	}

	roomInfoResponse struct {
		RoomID  string `json:"roomId"`
		Exists  bool   `json:"exists"`
		Clients int    `json:"clients"`
	}
)

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	srv.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   serviceName,
		"version":   serviceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (srv *Server) exchangeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Authorization code required"})
		return
	}

	tr, err := srv.creds.ExchangeCode(r.Context(), req.Code)
	if err != nil {
		srv.logger.Warn().Err(err).Msg("token exchange failed")
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: err.Error()})
		return
	}

	srv.writeJSON(w, http.StatusOK, tokenResponse{
		Success:      true,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		Scope:        tr.Scope,
	})
}

func (srv *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Refresh token required"})
		return
	}

	tr, err := srv.creds.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		srv.logger.Warn().Err(err).Msg("token refresh failed")
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: err.Error()})
		return
	}

	srv.writeJSON(w, http.StatusOK, tokenResponse{
		Success:      true,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
	})
}

// sendPin publishes by pin id: credential check, resolution, ingestion,
// broadcast, short-circuiting on the first failure.
func (srv *Server) sendPin(w http.ResponseWriter, r *http.Request) {
	var req sendPinRequest
	if err := decodeBody(r, &req); err != nil {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Invalid request body"})
		return
	}
	if msg := validateRoomID(req.RoomID); msg != "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: msg})
		return
	}
	if req.PinID == "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Pin ID required"})
		return
	}
	if req.AccessToken == "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Access token required"})
		return
	}

	logger := srv.logger.With().
		Str("roomID", req.RoomID).
		Str("pinID", req.PinID).
		Logger()

	cred := model.Credential{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(req.ExpiresAt, 0)
	}

	valid, err := srv.creds.EnsureValid(r.Context(), cred)
	if err != nil {
		srv.publishError(w, &logger, publishMethodAPI, err)
		return
	}

	desc, err := srv.pins.Resolve(r.Context(), req.PinID, valid.AccessToken)
	if err != nil {
		srv.publishError(w, &logger, publishMethodAPI, err)
		return
	}

	img, err := srv.fetcher.Fetch(r.Context(), desc.Image.URL)
	if err != nil {
		srv.publishError(w, &logger, publishMethodAPI, err)
		return
	}

	payload := model.Payload{
		Type:        model.FrameTypeNewImage,
		URL:         img.DataURL,
		Width:       firstNonZero(img.Width, desc.Image.Width, defaultImageDimension),
		Height:      firstNonZero(img.Height, desc.Image.Height, defaultImageDimension),
		Title:       desc.Title,
		Description: desc.Description,
		SourceURL:   desc.SourceURL,
		PinID:       req.PinID,
		Timestamp:   time.Now().UnixMilli(),
	}

	if !srv.deliver(w, &logger, publishMethodAPI, req.RoomID, payload) {
		return
	}

	resp := publishResponse{Success: true}
	if valid.AccessToken != cred.AccessToken {
		// the manager refreshed mid-publish; hand the new credential back
		resp.Credential = &credentialBody{
			AccessToken:  valid.AccessToken,
			RefreshToken: valid.RefreshToken,
		}
		if valid.Expires() {
			resp.Credential.ExpiresAt = valid.ExpiresAt.Unix()
		}
	}
	srv.writeJSON(w, http.StatusOK, resp)
}

// sendImage is the legacy raw-URL publish path: no credential, no resolution.
func (srv *Server) sendImage(w http.ResponseWriter, r *http.Request) {
	var req sendImageRequest
	if err := decodeBody(r, &req); err != nil {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Invalid request body"})
		return
	}
	if msg := validateRoomID(req.RoomID); msg != "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: msg})
		return
	}
	if req.URL == "" {
		srv.writeJSON(w, http.StatusBadRequest, genericResponse{Error: "Image URL required"})
		return
	}

	logger := srv.logger.With().Str("roomID", req.RoomID).Logger()

	img, err := srv.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		srv.publishError(w, &logger, publishMethodLegacy, err)
		return
	}

	payload := model.Payload{
		Type:      model.FrameTypeNewImage,
		URL:       img.DataURL,
		Width:     firstNonZero(req.Width, img.Width, defaultImageDimension),
		Height:    firstNonZero(req.Height, img.Height, defaultImageDimension),
		Timestamp: time.Now().UnixMilli(),
	}

	if !srv.deliver(w, &logger, publishMethodLegacy, req.RoomID, payload) {
		return
	}
	srv.writeJSON(w, http.StatusOK, genericResponse{Success: true})
}

func (srv *Server) roomInfo(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	clients := srv.rooms.Clients(roomID)
	srv.writeJSON(w, http.StatusOK, roomInfoResponse{
		RoomID:  roomID,
		Exists:  clients > 0,
		Clients: clients,
	})
}

// deliver broadcasts the payload and writes the empty-room response when
// nobody is listening. Returns true when at least one client received it.
func (srv *Server) deliver(w http.ResponseWriter, logger *zerolog.Logger, method, roomID string, payload model.Payload) bool {
	frame, err := json.Marshal(payload)
	if err != nil {
		srv.publishError(w, logger, method, err)
		return false
	}

	delivered := srv.rooms.Broadcast(roomID, frame)
	srv.metrics.FramesDelivered(delivered)
	if delivered == 0 {
		// the payload was fine, nobody was listening: distinct from failure
		srv.metrics.Publish(method, "empty_room")
		logger.Info().Msg("publish to empty room")
		srv.writeJSON(w, http.StatusNotFound, genericResponse{Error: "no clients in room"})
		return false
	}

	srv.metrics.Publish(method, "ok")
	logger.Info().Int("delivered", delivered).Msg("payload published")
	return true
}

func (srv *Server) publishError(w http.ResponseWriter, logger *zerolog.Logger, method string, err error) {
	kind := errorKind(err)
	srv.metrics.Publish(method, kind)
	logger.Error().Err(err).Str("kind", kind).Msg("publish failed")
	srv.writeJSON(w, http.StatusInternalServerError, genericResponse{Error: err.Error()})
}

// errorKind maps a component failure to its stable machine-readable code.
func errorKind(err error) string {
	var (
		provErr  *resolver.ProviderError
		fetchErr *ingest.FetchExhaustedError
	)
	switch {
	case errors.Is(err, auth.ErrCredentialExpired):
		return "credential_expired"
	case errors.Is(err, auth.ErrExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, auth.ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, resolver.ErrResourceNotFound):
		return "resource_not_found"
	case errors.Is(err, resolver.ErrResourceHasNoMedia):
		return "resource_has_no_media"
	case errors.As(err, &provErr):
		return "provider_error"
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.As(err, &fetchErr):
		return "fetch_exhausted"
	}
	return "internal"
}

func validateRoomID(roomID string) string {
	switch {
	case roomID == "":
		return "Room ID required"
	case len(roomID) < minRoomIDLength:
		return "Room ID must be at least 4 characters"
	}
	return ""
}

func decodeBody(r *http.Request, v any) error {
	defer func() {
		_ = r.Body.Close()
	}()
	return json.NewDecoder(r.Body).Decode(v)
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
