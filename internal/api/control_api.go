package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Engine is the part of the notification manager the control API drives.
type Engine interface {
	CreateLocal(n *notify.LocalNotification) error
	ScheduleLocal(n *notify.LocalNotification) error
	UnscheduleLocal(n *notify.LocalNotification) error
	DestroyLocal(n *notify.LocalNotification) error
	Lookup(h notify.Handle) (*notify.LocalNotification, bool)

	RegisterForPush(types notify.PushType, accountID string) notify.Result
	UnregisterFromPush()

	SetIconBadge(n int)
	IconBadge() int
	SetPushTitle(title string)
	SetPushTicker(ticker string)
	PushTitle() string
	PushTicker() string
}

type ControlAPI struct {
	Engine Engine
	Logger *slog.Logger
}

func NewControlAPI(engine Engine, logger *slog.Logger) *ControlAPI {
	return &ControlAPI{
		Engine: engine,
		Logger: logger.With("component", "ControlAPI"),
	}
}

// LocalRequest describes a local notification to create and schedule.
// FireAt wins over DelaySeconds; with neither the notification fires now.
type LocalRequest struct {
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	FireAt       *time.Time        `json:"fire_at,omitempty"`
	DelaySeconds int               `json:"delay_seconds,omitempty"`
	Sound        string            `json:"sound,omitempty"`
	PlaySound    bool              `json:"play_sound,omitempty"`
	Vibrate      bool              `json:"vibrate,omitempty"`
	Flash        bool              `json:"flash,omitempty"`
	Badge        int               `json:"badge,omitempty"`
	Recipient    string            `json:"recipient,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type LocalResponse struct {
	Handle    int64             `json:"handle"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	FireAt    time.Time         `json:"fire_at"`
	Recipient string            `json:"recipient,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

type PushRegisterRequest struct {
	// Types lists "alert", "sound" and "badge"; empty means all three.
	Types     []string `json:"types"`
	AccountID string   `json:"account_id"`
}

type ResultResponse struct {
	Result int    `json:"result"`
	Status string `json:"status"`
}

type BadgeBody struct {
	Badge int `json:"badge"`
}

type TextBody struct {
	Value string `json:"value"`
}

type DisplayResponse struct {
	Title  string `json:"title"`
	Ticker string `json:"ticker"`
}

var pushTypeNames = map[string]notify.PushType{
	"badge": notify.PushTypeBadge,
	"sound": notify.PushTypeSound,
	"alert": notify.PushTypeAlert,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toLocalResponse(n *notify.LocalNotification) LocalResponse {
	return LocalResponse{
		Handle:    int64(n.Handle),
		Title:     n.Title,
		Body:      n.Body,
		FireAt:    n.FireDate,
		Recipient: n.Recipient,
		Data:      n.Data,
	}
}

// CreateLocal handles POST /api/v1/local.
func (api *ControlAPI) CreateLocal(w http.ResponseWriter, r *http.Request) {
	var req LocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" && req.Body == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "title or body is required")
		return
	}
	if req.DelaySeconds < 0 || req.Badge < 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "delay_seconds and badge must not be negative")
		return
	}
	if req.Recipient != "" {
		if _, err := urn.Parse(req.Recipient); err != nil {
			response.WriteJSONError(w, http.StatusBadRequest, "recipient must be a URN")
			return
		}
	}

	fireAt := time.Now().Add(time.Duration(req.DelaySeconds) * time.Second)
	if req.FireAt != nil {
		fireAt = *req.FireAt
	}

	n := &notify.LocalNotification{
		Title:     req.Title,
		Body:      req.Body,
		FireDate:  fireAt,
		SoundPath: req.Sound,
		PlaySound: req.PlaySound,
		Vibrate:   req.Vibrate,
		Flash:     req.Flash,
		IconBadge: req.Badge,
		Recipient: req.Recipient,
		Data:      req.Data,
	}

	if err := api.Engine.CreateLocal(n); err != nil {
		api.Logger.Error("Failed to create local notification", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "create failed")
		return
	}
	if err := api.Engine.ScheduleLocal(n); err != nil {
		api.Logger.Error("Failed to schedule local notification", "handle", n.Handle, "err", err)
		if derr := api.Engine.DestroyLocal(n); derr != nil {
			api.Logger.Warn("Failed to release unscheduled notification", "handle", n.Handle, "err", derr)
		}
		response.WriteJSONError(w, http.StatusInternalServerError, "schedule failed")
		return
	}

	api.Logger.Info("Local notification scheduled", "handle", n.Handle, "fire_at", fireAt)
	writeJSON(w, http.StatusCreated, toLocalResponse(n))
}

func (api *ControlAPI) lookup(w http.ResponseWriter, r *http.Request) (*notify.LocalNotification, bool) {
	id, err := strconv.ParseInt(r.PathValue("handle"), 10, 64)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid handle")
		return nil, false
	}
	n, ok := api.Engine.Lookup(notify.Handle(id))
	if !ok {
		response.WriteJSONError(w, http.StatusNotFound, "unknown handle")
		return nil, false
	}
	return n, true
}

// GetLocal handles GET /api/v1/local/{handle}.
func (api *ControlAPI) GetLocal(w http.ResponseWriter, r *http.Request) {
	n, ok := api.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toLocalResponse(n))
}

// DeleteLocal handles DELETE /api/v1/local/{handle}: it cancels any pending
// delivery and releases the handle.
func (api *ControlAPI) DeleteLocal(w http.ResponseWriter, r *http.Request) {
	n, ok := api.lookup(w, r)
	if !ok {
		return
	}
	if err := api.Engine.UnscheduleLocal(n); err != nil {
		api.Logger.Warn("Failed to unschedule local notification", "handle", n.Handle, "err", err)
	}
	if err := api.Engine.DestroyLocal(n); err != nil {
		api.Logger.Error("Failed to destroy local notification", "handle", n.Handle, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "destroy failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterPush handles POST /api/v1/push/register. The outcome is delivered
// to push listeners later; the response only carries the immediate status.
func (api *ControlAPI) RegisterPush(w http.ResponseWriter, r *http.Request) {
	var req PushRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var types notify.PushType
	for _, name := range req.Types {
		t, ok := pushTypeNames[name]
		if !ok {
			response.WriteJSONError(w, http.StatusBadRequest, "unknown push type: "+name)
			return
		}
		types |= t
	}
	if types == 0 {
		types = notify.PushTypeBadge | notify.PushTypeSound | notify.PushTypeAlert
	}

	result := api.Engine.RegisterForPush(types, req.AccountID)
	status := http.StatusAccepted
	switch result {
	case notify.ResultOK:
	case notify.ResultAlreadyRegistered:
		status = http.StatusConflict
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, ResultResponse{Result: int(result), Status: result.String()})
}

// UnregisterPush handles POST /api/v1/push/unregister.
func (api *ControlAPI) UnregisterPush(w http.ResponseWriter, _ *http.Request) {
	api.Engine.UnregisterFromPush()
	w.WriteHeader(http.StatusAccepted)
}

// GetBadge handles GET /api/v1/badge.
func (api *ControlAPI) GetBadge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BadgeBody{Badge: api.Engine.IconBadge()})
}

// SetBadge handles PUT /api/v1/badge.
func (api *ControlAPI) SetBadge(w http.ResponseWriter, r *http.Request) {
	var req BadgeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Badge < 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "badge must not be negative")
		return
	}
	api.Engine.SetIconBadge(req.Badge)
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) setText(w http.ResponseWriter, r *http.Request, set func(string)) {
	var req TextBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	set(req.Value)
	w.WriteHeader(http.StatusNoContent)
}

// SetTitle handles PUT /api/v1/push/title.
func (api *ControlAPI) SetTitle(w http.ResponseWriter, r *http.Request) {
	api.setText(w, r, api.Engine.SetPushTitle)
}

// SetTicker handles PUT /api/v1/push/ticker.
func (api *ControlAPI) SetTicker(w http.ResponseWriter, r *http.Request) {
	api.setText(w, r, api.Engine.SetPushTicker)
}

// GetDisplay handles GET /api/v1/push/display.
func (api *ControlAPI) GetDisplay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DisplayResponse{
		Title:  api.Engine.PushTitle(),
		Ticker: api.Engine.PushTicker(),
	})
}

// Router is satisfied by *http.ServeMux.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// Routes registers the control endpoints on mux, wrapping each handler.
func (api *ControlAPI) Routes(mux Router, wrap func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, wrap(h))
	}
	handle("POST /api/v1/local", api.CreateLocal)
	handle("GET /api/v1/local/{handle}", api.GetLocal)
	handle("DELETE /api/v1/local/{handle}", api.DeleteLocal)
	handle("POST /api/v1/push/register", api.RegisterPush)
	handle("POST /api/v1/push/unregister", api.UnregisterPush)
	handle("GET /api/v1/badge", api.GetBadge)
	handle("PUT /api/v1/badge", api.SetBadge)
	handle("PUT /api/v1/push/title", api.SetTitle)
	handle("PUT /api/v1/push/ticker", api.SetTicker)
	handle("GET /api/v1/push/display", api.GetDisplay)
}
