package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/rest/middleware"
	"github.com/Guyuepp/pretty-like/internal/rest/request"
	"github.com/Guyuepp/pretty-like/internal/rest/response"
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

// LikeHandler represent the httphandler for likes
type LikeHandler struct {
	Service domain.LikeUsecase
}

func NewLikeHandler(svc domain.LikeUsecase) *LikeHandler {
	return &LikeHandler{
		Service: svc,
	}
}

// Register mounts the like routes. Toggles require a caller identity.
func (h *LikeHandler) Register(route gin.IRouter) {
	route.GET("/items/:id", middleware.OptionalUser(), h.GetItem)
	route.GET("/hotkeys", h.HotKeys)

	authorized := route.Group("/likes")
	authorized.Use(middleware.RequireUser())
	{
		authorized.POST("/do", h.Like)
		authorized.POST("/undo", h.Unlike)
	}
}

// Like accepts a like of the item in the request body
func (h *LikeHandler) Like(c *gin.Context) {
	h.toggle(c, domain.Like)
}

// Unlike accepts an unlike of the item in the request body
func (h *LikeHandler) Unlike(c *gin.Context) {
	h.toggle(c, domain.Unlike)
}

func (h *LikeHandler) toggle(c *gin.Context, action domain.LikeAction) {
	var req request.Toggle
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ResponseError{Message: domain.ErrBadParamInput.Error()})
		return
	}
	uid := c.GetInt64(middleware.UserIDKey)

	var err error
	if action == domain.Like {
		err = h.Service.Like(c.Request.Context(), uid, req.ItemID)
	} else {
		err = h.Service.Unlike(c.Request.Context(), uid, req.ItemID)
	}
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.Toggle{ItemID: req.ItemID, Action: action.String()})
}

// GetItem will get the item by given id, with the caller's like state
func (h *LikeHandler) GetItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, ResponseError{Message: domain.ErrNotFound.Error()})
		return
	}

	view, err := h.Service.GetItem(c.Request.Context(), c.GetInt64(middleware.UserIDKey), id)
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.NewItemFromDomain(&view))
}

// HotKeys lists the current hot keys, hottest first
func (h *LikeHandler) HotKeys(c *gin.Context) {
	keys := h.Service.HotItems(c.Request.Context())
	if keys == nil {
		keys = []domain.HotKey{}
	}
	c.JSON(http.StatusOK, keys)
}

// getStatusCode will get the code of the error from domain.LikeUsecase
func getStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, domain.ErrBadParamInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBackingStoreUnavailable), errors.Is(err, domain.ErrBrokerUnavailable):
		logrus.Error(err)
		return http.StatusServiceUnavailable
	default:
		logrus.Error(err)
		return http.StatusInternalServerError
	}
}
