package engagement

import (
	"net/http"

	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) DailyBonusStatus(c *gin.Context) {
	status, err := h.svc.GetDailyBonusStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) ClaimDailyBonus(c *gin.Context) {
	result, err := h.svc.ClaimDailyBonus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) StartAdWatch(c *gin.Context) {
	session, err := h.svc.StartAdWatch(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

type claimAdRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) ClaimAdReward(c *gin.Context) {
	var req claimAdRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.Error(errutil.BadRequest("session_id is required", err))
		return
	}

	reward, err := h.svc.ClaimAdReward(c.Request.Context(), middleware.UserID(c), req.SessionID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, reward)
}
