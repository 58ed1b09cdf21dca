package handlers

import (
	"crypto/rand"
	"math/big"
	"net/http"

	"crypto_arena/internal/service"

	"github.com/gin-gonic/gin"
)

// выдает гостевой токен доступа. Гостевая личность живет, пока жив
// токен; привязка к кошельку происходит отдельным потоком.
func (h *Handler) GuestToken(c *gin.Context) {
	// случайный положительный ID вне диапазона обычных пользователей
	n, err := rand.Int(rand.Reader, big.NewInt(1<<40))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	userID := n.Int64() + (1 << 40)

	token, err := service.IssueJWT(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "token": token})
}
