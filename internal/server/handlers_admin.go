package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleAdminSummary(c *gin.Context) {
	summary, err := h.plates.AdminSummary(c.Request.Context())
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"players":       summary.Players,
		"submissions":   summary.Submissions,
		"unique_plates": summary.UniquePlates,
		"registrations": summary.Registrations,
	})
}

func (h *httpHandler) handleAdminLeaderboard(c *gin.Context) {
	h.handleLeaderboard(c)
}

func (h *httpHandler) handleAdminUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query_required"})
		return
	}

	results, err := h.plates.SearchPlayers(c.Request.Context(), query, queryLimit(c))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	players := make([]gin.H, 0, len(results))
	for _, result := range results {
		players = append(players, gin.H{
			"player_id":     result.PlayerID,
			"username":      result.Username,
			"first_name":    result.FirstName,
			"last_name":     result.LastName,
			"total_points":  result.TotalPoints,
			"unique_plates": result.UniquePlates,
			"plates":        result.Plates,
		})
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

type adminBonusPayload struct {
	PlayerID int64  `json:"player_id"`
	Amount   int    `json:"amount"`
	Reason   string `json:"reason"`
}

func (h *httpHandler) handleAdminBonus(c *gin.Context) {
	var request adminBonusPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.PlayerID <= 0 || request.Amount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.plates.GrantBonus(c.Request.Context(), request.PlayerID, request.Amount, request.Reason); err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": true})
}
