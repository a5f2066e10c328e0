package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

type handlers struct {
	svc Service
	log *zap.Logger
}

type chatRequest struct {
	Text  string `json:"text" binding:"required"`
	MapID string `json:"mapId"`
}

type saveRequest struct {
	Graph    state.Graph `json:"graph"`
	Concept  string      `json:"concept"`
	Revision int64       `json:"revision"`
}

type generateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(apperrors.ErrorTypeValidation)})
		return
	}
	mapID := c.Param("id")
	if mapID == "" {
		mapID = req.MapID
	}

	id := identityFrom(c)
	result, err := h.svc.RunTurn(c.Request.Context(), agent.TurnRequest{
		MapID:            mapID,
		OwnerID:          id.OwnerID,
		OwnerDisplayName: id.DisplayName,
		Text:             req.Text,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *handlers) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(apperrors.ErrorTypeValidation)})
		return
	}

	fragment, err := h.svc.Generate(c.Request.Context(), agent.GenerateRequest{
		OwnerID: identityFrom(c).OwnerID,
		Text:    req.Text,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fragment)
}

func (h *handlers) createMap(c *gin.Context) {
	rec, err := h.svc.CreateMap(c.Request.Context(), identityFrom(c).OwnerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rec.ID, "revision": rec.Revision})
}

func (h *handlers) listMaps(c *gin.Context) {
	maps, err := h.svc.ListMaps(c.Request.Context(), identityFrom(c).OwnerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"maps": maps})
}

func (h *handlers) getMap(c *gin.Context) {
	rec, err := h.svc.GetMap(c.Request.Context(), identityFrom(c).OwnerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) saveMap(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(apperrors.ErrorTypeValidation)})
		return
	}

	revision, err := h.svc.SaveMap(c.Request.Context(), agent.SaveRequest{
		OwnerID:  identityFrom(c).OwnerID,
		MapID:    c.Param("id"),
		Graph:    req.Graph,
		Concept:  req.Concept,
		Revision: req.Revision,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "revision": revision})
}

// writeError renders a classified error as {error, kind}
func (h *handlers) writeError(c *gin.Context, err error) {
	kind, ok := apperrors.KindOf(err)
	status := StatusFor(kind)
	if !ok {
		kind = "internal"
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{
		"error":     err.Error(),
		"kind":      string(kind),
		"retryable": apperrors.IsRetryable(err),
	})
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperrors.ErrorType) int {
	switch kind {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConcurrentModification:
		return http.StatusConflict
	case apperrors.ErrorTypeIntentDecode:
		return http.StatusBadGateway
	case apperrors.ErrorTypeDependencyUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeDependencyTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
