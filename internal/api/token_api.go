// Package api exposes the HTTP surface of the dispatch service: device token
// registration for relay recipients and the engine control endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// TokenAPI lets an authenticated user register the devices the relay
// forwards their notifications to.
type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

type TokenRequest struct {
	Token string `json:"token"`
}

type UnregisterWebRequest struct {
	Endpoint string `json:"endpoint"`
}

// caller resolves the authenticated user. It writes the error response
// itself and reports false when the request must stop.
func (api *TokenAPI) caller(w http.ResponseWriter, r *http.Request) (urn.URN, bool) {
	var none urn.URN
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return none, false
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		api.Logger.Warn("Authenticated user id is not a URN", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusForbidden, "invalid user identity")
		return none, false
	}
	return userURN, true
}

// RegisterFCM handles POST /api/v1/register/fcm.
func (api *TokenAPI) RegisterFCM(w http.ResponseWriter, r *http.Request) {
	userURN, ok := api.caller(w, r)
	if !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.RegisterFCM(r.Context(), userURN, req.Token); err != nil {
		api.Logger.Error("Failed to register mobile token", "user", userURN.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterWeb handles POST /api/v1/register/web.
func (api *TokenAPI) RegisterWeb(w http.ResponseWriter, r *http.Request) {
	userURN, ok := api.caller(w, r)
	if !ok {
		return
	}

	var sub notification.WebPushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}
	if sub.Endpoint == "" || len(sub.Keys.P256dh) == 0 || len(sub.Keys.Auth) == 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	if err := api.Store.RegisterWeb(r.Context(), userURN, sub); err != nil {
		api.Logger.Error("Failed to register web subscription", "user", userURN.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Web subscription registered", "user", userURN.String(), "endpoint", sub.Endpoint)
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterFCM handles POST /api/v1/unregister/fcm. Storage failures are
// logged only; unregistering is idempotent from the client's point of view.
func (api *TokenAPI) UnregisterFCM(w http.ResponseWriter, r *http.Request) {
	userURN, ok := api.caller(w, r)
	if !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := api.Store.UnregisterFCM(r.Context(), userURN, req.Token); err != nil {
		api.Logger.Warn("Failed to unregister mobile token", "user", userURN.String(), "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterWeb handles POST /api/v1/unregister/web.
func (api *TokenAPI) UnregisterWeb(w http.ResponseWriter, r *http.Request) {
	userURN, ok := api.caller(w, r)
	if !ok {
		return
	}

	var req UnregisterWebRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing endpoint")
		return
	}

	if err := api.Store.UnregisterWeb(r.Context(), userURN, req.Endpoint); err != nil {
		api.Logger.Warn("Failed to unregister web subscription", "user", userURN.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister web")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
