package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
	"github.com/MarcoPoloResearchLab/roomsync/internal/roomcode"
	"github.com/MarcoPoloResearchLab/roomsync/internal/rooms"
)

const (
	namespaceContextKey = "roomsync_namespace"
	roomCodeContextKey  = "roomsync_room_code"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingRoomsService = errors.New("rooms service dependency required")
	errMissingRealtime     = errors.New("realtime dispatcher dependency required")
)

type Dependencies struct {
	RoomsService      *rooms.Service
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.RoomsService == nil {
		return nil, errMissingRoomsService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		roomsService:   deps.RoomsService,
		realtime:       deps.Realtime,
		logger:         logger,
		allowedOrigins: deps.AllowedOrigins,
		heartbeat:      heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	room := router.Group("/v1/:namespace/rooms/:code")
	room.Use(handler.resolveRoom)
	room.GET("", handler.handleGetRoom)
	room.PUT("", handler.handlePutRoom)
	room.GET("/versions", handler.handleListVersions)
	room.POST("/versions", handler.handleInsertVersion)
	room.DELETE("/versions", handler.handleClearVersions)

	// The websocket upgrade hijacks the raw connection, so it bypasses gin.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/{namespace}/rooms/{code}/realtime", handler.serveRealtime)
	mux.Handle("/", router)
	return mux, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

type httpHandler struct {
	roomsService   *rooms.Service
	realtime       *RealtimeDispatcher
	logger         *zap.Logger
	allowedOrigins []string
	heartbeat      time.Duration
}

type putRoomRequestPayload struct {
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin"`
}

type insertVersionRequestPayload struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Snapshot json.RawMessage `json:"snapshot"`
}

type listVersionsResponsePayload struct {
	Versions []collab.VersionRecord `json:"versions"`
}

type clearVersionsResponsePayload struct {
	Cleared int64 `json:"cleared"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) resolveRoom(c *gin.Context) {
	namespace, code, errorCode := parseRoom(c.Param("namespace"), c.Param("code"))
	if errorCode != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorCode})
		return
	}
	c.Set(namespaceContextKey, namespace)
	c.Set(roomCodeContextKey, code)
	c.Next()
}

// parseRoom validates the path parameters shared by every room route and
// returns the error code to report when one is unusable.
func parseRoom(rawNamespace, rawCode string) (rooms.Namespace, roomcode.Code, string) {
	namespace, err := rooms.NewNamespace(rawNamespace)
	if err != nil {
		return "", "", "invalid_namespace"
	}
	code, err := roomcode.New(rawCode)
	if err != nil {
		return "", "", "invalid_room_code"
	}
	return namespace, code, ""
}

func roomFromContext(c *gin.Context) (rooms.Namespace, roomcode.Code) {
	namespace, _ := c.Get(namespaceContextKey)
	code, _ := c.Get(roomCodeContextKey)
	typedNamespace, _ := namespace.(rooms.Namespace)
	typedCode, _ := code.(roomcode.Code)
	return typedNamespace, typedCode
}

func (h *httpHandler) handleGetRoom(c *gin.Context) {
	namespace, code := roomFromContext(c)
	room, found, err := h.roomsService.GetRoom(c.Request.Context(), namespace, code)
	if err != nil {
		h.writeServiceError(c, "room_fetch_failed", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
		return
	}
	c.JSON(http.StatusOK, room.Record())
}

func (h *httpHandler) handlePutRoom(c *gin.Context) {
	namespace, code := roomFromContext(c)
	var request putRoomRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	room, err := h.roomsService.UpsertRoom(c.Request.Context(), namespace, code, request.Payload, request.Origin)
	if err != nil {
		h.writeServiceError(c, "room_upsert_failed", err)
		return
	}

	record := room.Record()
	h.realtime.Publish(RealtimeMessage{
		Namespace: namespace.String(),
		RoomCode:  code.String(),
		Event:     collab.RemoteEvent{Type: collab.EventRoomChange, Room: &record},
	})
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	namespace, code := roomFromContext(c)
	limit := cast.ToInt(c.Query("limit"))
	versions, err := h.roomsService.ListVersions(c.Request.Context(), namespace, code, limit)
	if err != nil {
		h.writeServiceError(c, "versions_fetch_failed", err)
		return
	}
	response := listVersionsResponsePayload{Versions: make([]collab.VersionRecord, 0, len(versions))}
	for _, version := range versions {
		response.Versions = append(response.Versions, version.Record())
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleInsertVersion(c *gin.Context) {
	namespace, code := roomFromContext(c)
	var request insertVersionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Snapshot) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	version, err := h.roomsService.InsertVersion(c.Request.Context(), namespace, code, rooms.VersionInput{
		ID:       request.ID,
		Label:    request.Label,
		Snapshot: request.Snapshot,
	})
	if err != nil {
		h.writeServiceError(c, "version_insert_failed", err)
		return
	}

	h.publishVersionChange(namespace, code)
	c.JSON(http.StatusCreated, version.Record())
}

func (h *httpHandler) handleClearVersions(c *gin.Context) {
	namespace, code := roomFromContext(c)
	cleared, err := h.roomsService.ClearVersions(c.Request.Context(), namespace, code)
	if err != nil {
		h.writeServiceError(c, "versions_clear_failed", err)
		return
	}
	h.publishVersionChange(namespace, code)
	c.JSON(http.StatusOK, clearVersionsResponsePayload{Cleared: cleared})
}

func (h *httpHandler) publishVersionChange(namespace rooms.Namespace, code roomcode.Code) {
	h.realtime.Publish(RealtimeMessage{
		Namespace: namespace.String(),
		RoomCode:  code.String(),
		Event:     collab.RemoteEvent{Type: collab.EventVersionChange},
	})
}

func (h *httpHandler) writeServiceError(c *gin.Context, fallback string, err error) {
	status := http.StatusInternalServerError
	message := fallback
	if errors.Is(err, rooms.ErrInvalidPayload) {
		status = http.StatusBadRequest
		message = "invalid_payload"
	}
	var serviceErr *rooms.ServiceError
	if errors.As(err, &serviceErr) {
		if status == http.StatusInternalServerError {
			h.logger.Error("rooms request failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": message, "code": serviceErr.Code()})
		return
	}
	h.logger.Error("rooms request failed", zap.Error(err))
	c.JSON(status, gin.H{"error": message})
}
