package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plateworks/platespot/internal/racer"
)

// vehicleCatalog is the fixed shop. Prices are in racing currency.
var vehicleCatalog = map[string]int{
	"hatch": 100,
	"sedan": 250,
	"sport": 600,
	"super": 1200,
}

type garageEntryPayload struct {
	VehicleID string `json:"vehicle_id"`
	Level     int    `json:"level"`
	Power     int    `json:"power"`
}

func garagePayload(entries []racer.GarageEntry) []garageEntryPayload {
	out := make([]garageEntryPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, garageEntryPayload{
			VehicleID: entry.VehicleID,
			Level:     entry.Level,
			Power:     racer.VehiclePower(entry.Level),
		})
	}
	return out
}

func (h *httpHandler) handleRacerMe(c *gin.Context) {
	playerID := currentPlayerID(c)
	ctx := c.Request.Context()

	balance, err := h.racer.Balance(ctx, playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	energy, err := h.racer.EnergyOf(ctx, playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	garage, err := h.racer.Garage(ctx, playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	shop := make([]gin.H, 0, len(vehicleCatalog))
	for _, vehicleID := range []string{"hatch", "sedan", "sport", "super"} {
		shop = append(shop, gin.H{"vehicle_id": vehicleID, "price": vehicleCatalog[vehicleID]})
	}

	c.JSON(http.StatusOK, gin.H{
		"player_id": playerID,
		"balance":   balance,
		"energy":    energy,
		"garage":    garagePayload(garage),
		"shop":      shop,
	})
}

type vehiclePayload struct {
	VehicleID string `json:"vehicle_id"`
}

func (h *httpHandler) handleGarageBuy(c *gin.Context) {
	var request vehiclePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.VehicleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	price, known := vehicleCatalog[request.VehicleID]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_vehicle"})
		return
	}

	outcome, err := h.racer.Buy(c.Request.Context(), currentPlayerID(c), request.VehicleID, price)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance": outcome.Balance,
		"garage":  garagePayload(outcome.Garage),
	})
}

func (h *httpHandler) handleGarageUpgrade(c *gin.Context) {
	var request vehiclePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.VehicleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, err := h.racer.Upgrade(c.Request.Context(), currentPlayerID(c), request.VehicleID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id": request.VehicleID,
		"level":      outcome.Level,
		"cost":       outcome.Cost,
		"balance":    outcome.Balance,
	})
}

func (h *httpHandler) handleRaceStart(c *gin.Context) {
	var request vehiclePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.VehicleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, err := h.racer.StartRace(c.Request.Context(), currentPlayerID(c), request.VehicleID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":       outcome.Result,
		"points_delta": outcome.PointsDelta,
		"prize":        outcome.Prize,
		"replay":       outcome.Replay,
		"balance":      outcome.Balance,
		"energy":       outcome.Energy,
	})
}

func (h *httpHandler) handleRacerLeaderboard(c *gin.Context) {
	rows, err := h.racer.Leaderboard(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	type entry struct {
		PlayerID int64 `json:"player_id"`
		Points   int   `json:"points"`
		Races    int   `json:"races"`
	}
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entry{PlayerID: row.PlayerID, Points: row.Points, Races: row.Races})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

type challengePayload struct {
	PlayerID  int64  `json:"player_id"`
	VehicleID string `json:"vehicle_id"`
}

func (h *httpHandler) handleChallengeCreate(c *gin.Context) {
	var request challengePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.PlayerID <= 0 || request.VehicleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	playerID := currentPlayerID(c)
	if request.PlayerID == playerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot_challenge_self"})
		return
	}

	challengeID, err := h.racer.CreateChallenge(c.Request.Context(), playerID, request.PlayerID, request.VehicleID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge_id": challengeID, "status": racer.StatusPending})
}

type challengeActionPayload struct {
	ChallengeID int64 `json:"challenge_id"`
}

func (h *httpHandler) handleChallengeDecline(c *gin.Context) {
	h.settleChallenge(c, h.racer.DeclineChallenge, racer.StatusDeclined)
}

func (h *httpHandler) handleChallengeCancel(c *gin.Context) {
	h.settleChallenge(c, h.racer.CancelChallenge, racer.StatusCanceled)
}

func (h *httpHandler) settleChallenge(c *gin.Context, action func(ctx context.Context, actorID, challengeID int64) error, status string) {
	var request challengeActionPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ChallengeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := action(c.Request.Context(), currentPlayerID(c), request.ChallengeID); err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge_id": request.ChallengeID, "status": status})
}

func (h *httpHandler) handleChallengeAccept(c *gin.Context) {
	var request challengeActionPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ChallengeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, err := h.racer.AcceptChallenge(c.Request.Context(), currentPlayerID(c), request.ChallengeID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"challenge_id": outcome.ChallengeID,
		"status":       racer.StatusDone,
		"challenger":   duelSidePayload(outcome.Challenger),
		"challenged":   duelSidePayload(outcome.Challenged),
		"replay":       outcome.Replay,
	})
}

func duelSidePayload(side racer.DuelSide) gin.H {
	return gin.H{
		"player_id":    side.PlayerID,
		"vehicle_id":   side.VehicleID,
		"result":       side.Result,
		"points_delta": side.PointsDelta,
		"prize":        side.Prize,
		"balance":      side.Balance,
		"energy":       side.Energy,
	}
}

func (h *httpHandler) handleChallengeList(c *gin.Context) {
	list, err := h.racer.ListChallenges(c.Request.Context(), currentPlayerID(c))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incoming": challengesPayload(list.Incoming),
		"outgoing": challengesPayload(list.Outgoing),
		"history":  challengesPayload(list.History),
	})
}

func challengesPayload(challenges []racer.Challenge) []gin.H {
	out := make([]gin.H, 0, len(challenges))
	for _, challenge := range challenges {
		out = append(out, gin.H{
			"challenge_id":  challenge.ID,
			"challenger_id": challenge.ChallengerID,
			"challenged_id": challenge.ChallengedID,
			"vehicle_id":    challenge.VehicleID,
			"status":        challenge.Status,
			"created_at":    challenge.CreatedAt.UTC(),
		})
	}
	return out
}
