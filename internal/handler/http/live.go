package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-live-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

const streamKeepalive = 30 * time.Second

// LiveHandler defines the live attendance handler interface
type LiveHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	Reconnect(w http.ResponseWriter, r *http.Request)
	SetVisibility(w http.ResponseWriter, r *http.Request)

	// SSE
	StreamToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type liveHandlerImpl struct {
	liveService live.LiveService
	jwtService  jwt.Service
	keepalive   time.Duration
}

func NewLiveHandler(liveService live.LiveService, jwtService jwt.Service) LiveHandler {
	return &liveHandlerImpl{
		liveService: liveService,
		jwtService:  jwtService,
		keepalive:   streamKeepalive,
	}
}

func liveRequestFromQuery(r *http.Request) live.LiveRequest {
	q := r.URL.Query()
	return live.LiveRequest{
		Department: q.Get("department"),
		Location:   q.Get("location"),
	}
}

// Get returns the current live view for the department and location filters
func (h *liveHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.liveService.GetLive(r.Context(), liveRequestFromQuery(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, resp)
}

// Refresh triggers an interactive refresh
func (h *liveHandlerImpl) Refresh(w http.ResponseWriter, r *http.Request) {
	resp, err := h.liveService.Refresh(r.Context(), liveRequestFromQuery(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Live attendance updated", resp)
}

// Reconnect marks the store reachable and refreshes the view
func (h *liveHandlerImpl) Reconnect(w http.ResponseWriter, r *http.Request) {
	resp, err := h.liveService.Reconnect(r.Context(), liveRequestFromQuery(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Reconnected", resp)
}

func (h *liveHandlerImpl) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req live.VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	resp, err := h.liveService.SetVisibility(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, resp)
}

// StreamToken generates a short-lived token for SSE connections
func (h *liveHandlerImpl) StreamToken(w http.ResponseWriter, r *http.Request) {
	_, claims, _ := jwtauth.FromContext(r.Context())
	subject, _ := claims["sub"].(string)
	companyID, _ := claims["company_id"].(string)
	if companyID == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	token, expiresIn, err := h.jwtService.GenerateStreamToken(subject, companyID)
	if err != nil {
		slog.Error("Failed to generate stream token", "error", err)
		response.InternalServerError(w, "Failed to generate stream token")
		return
	}

	response.Success(w, live.StreamTokenResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Stream handles the SSE connection for a live view
func (h *liveHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	// EventSource cannot send headers, so the token comes in the query
	tokenStr := middleware.QueryToken(r)
	if tokenStr == "" {
		response.Unauthorized(w, "Missing token")
		return
	}

	token, err := h.jwtService.ValidateStreamToken(tokenStr)
	if err != nil {
		response.Unauthorized(w, "Invalid token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, "Streaming not supported")
		return
	}

	ctx := jwtauth.NewContext(r.Context(), token, nil)
	sub, err := h.liveService.Subscribe(ctx, liveRequestFromQuery(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	lastVersion := sub.Initial.Version
	if err := writeEvent(w, "live", lastVersion, sub.Initial); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			state, ok := event.Data.(live.LiveStateResponse)
			if !ok || state.Version <= lastVersion {
				continue
			}
			lastVersion = state.Version
			if err := writeEvent(w, event.Event, state.Version, state); err != nil {
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, id uint64, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to encode live event", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, name, payload)
	return err
}
