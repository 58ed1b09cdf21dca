package handlers

import (
	"errors"
	"net/http"

	"crypto_arena/internal/service"
	"crypto_arena/internal/session"

	"github.com/gin-gonic/gin"
)

// начинает тренировочную игру против дома
func (h *Handler) PracticeStart(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	var req struct {
		Game      string `json:"game"`
		Bet       string `json:"bet"`
		Odds      string `json:"odds"`
		TokenType string `json:"token_type"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if req.Game == "" {
		req.Game = string(session.KindCoinToss)
	}
	if req.Bet == "" {
		req.Bet = "1"
	}
	if req.Odds == "" {
		req.Odds = "2"
	}
	if req.TokenType == "" {
		req.TokenType = "ton"
	}

	snap, err := h.Practice.StartGame(userID, session.GameKind(req.Game), req.Bet, req.Odds, req.TokenType)
	if err != nil {
		if errors.Is(err, service.ErrGameInProgress) || errors.Is(err, service.ErrUnknownKind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, session.ErrInvalidStake) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// выполняет ход в тренировочной игре
func (h *Handler) PracticeChoice(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	var req struct {
		Choice string `json:"choice"`
	}
	if err := c.BindJSON(&req); err != nil || req.Choice == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	snap, err := h.Practice.SubmitChoice(userID, req.Choice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// начинает следующий раунд тренировочной игры
func (h *Handler) PracticeRematch(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	snap, err := h.Practice.Rematch(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// возвращает состояние тренировочной игры
func (h *Handler) PracticeState(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	snap, err := h.Practice.GameState(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// досрочно завершает тренировочную игру
func (h *Handler) PracticeLeave(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	if err := h.Practice.LeaveGame(userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
