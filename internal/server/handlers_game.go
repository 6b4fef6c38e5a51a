package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plateworks/platespot/internal/ocr"
)

type telegramAuthPayload struct {
	InitData string `json:"init_data"`
}

type telegramAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	PlayerID    int64  `json:"player_id"`
}

func (h *httpHandler) handleTelegramAuth(c *gin.Context) {
	var request telegramAuthPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.InitData) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.verifier.Verify(request.InitData)
	if err != nil {
		h.logger.Warn("init data verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": authReasonCode(err)})
		return
	}

	if err := h.players.Upsert(c.Request.Context(), user.ID, user.Username, user.FirstName, user.LastName); err != nil {
		h.respondDomainError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, telegramAuthResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		PlayerID:    user.ID,
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	playerID := currentPlayerID(c)

	stats, err := h.plates.RecognitionPoints(c.Request.Context(), playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	plateList, err := h.plates.List(c.Request.Context(), playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	body := gin.H{
		"player_id":     playerID,
		"total_points":  stats.TotalPoints,
		"unique_plates": stats.UniquePlates,
		"plates":        plateList,
	}
	if profile, err := h.players.Get(c.Request.Context(), playerID); err == nil {
		body["username"] = profile.Username
		body["display_name"] = profile.DisplayName()
	}
	c.JSON(http.StatusOK, body)
}

type platePayload struct {
	Plate string `json:"plate"`
}

func (h *httpHandler) handleRegisterPlate(c *gin.Context) {
	var request platePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	playerID := currentPlayerID(c)

	created, err := h.plates.Register(c.Request.Context(), playerID, request.Plate)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusConflict, gin.H{"error": "plate_already_registered"})
		return
	}

	plateList, err := h.plates.List(c.Request.Context(), playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": true, "plates": plateList})
}

func (h *httpHandler) handleDeletePlate(c *gin.Context) {
	var request platePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	playerID := currentPlayerID(c)

	removed, err := h.plates.Delete(c.Request.Context(), playerID, request.Plate)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "plate_not_registered"})
		return
	}

	plateList, err := h.plates.List(c.Request.Context(), playerID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "plates": plateList})
}

type submissionPayload struct {
	Plate    string `json:"plate"`
	PhotoURL string `json:"photo_url"`
	Caption  string `json:"caption"`
}

type spottedAwardPayload struct {
	OwnerID int64 `json:"owner_id"`
	Amount  int   `json:"amount"`
}

// handleSubmission resolves the plate (explicit text wins, then photo
// recognition, then the caption heuristic), records it and fans spotted
// notifications out to the credited owners. Notification failures never
// fail the submission.
func (h *httpHandler) handleSubmission(c *gin.Context) {
	var request submissionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	playerID := currentPlayerID(c)
	ctx := c.Request.Context()

	if h.limiter != nil && h.submitsPerDay > 0 {
		quota, err := h.limiter.ConsumeDaily(ctx, "submit:"+strconv.FormatInt(playerID, 10), h.submitsPerDay)
		if err != nil {
			h.respondDomainError(c, err)
			return
		}
		if !quota.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":    "daily_limit_reached",
				"reset_at": quota.ResetAt.UTC().Format("2006-01-02T15:04:05Z"),
			})
			return
		}
	}

	plateText, err := h.resolvePlate(c, request)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	if plateText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_plate_detected"})
		return
	}

	outcome, err := h.plates.Record(ctx, playerID, plateText, request.PhotoURL)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	if !outcome.Accepted {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_submission", "plate": outcome.Plate})
		return
	}

	awards := make([]spottedAwardPayload, 0, len(outcome.Awards))
	for _, award := range outcome.Awards {
		awards = append(awards, spottedAwardPayload{OwnerID: award.OwnerID, Amount: award.Amount})
		text := "Your plate " + award.Plate + " was spotted! +" + strconv.Itoa(award.Amount) + " points."
		if err := h.notifier.Send(ctx, award.OwnerID, text); err != nil {
			h.logger.Warn("spotted notification failed",
				zap.Int64("owner_id", award.OwnerID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted":      true,
		"submission_id": outcome.SubmissionID,
		"plate":         outcome.Plate,
		"points":        outcome.Points,
		"spotted":       awards,
	})
}

func (h *httpHandler) resolvePlate(c *gin.Context, request submissionPayload) (string, error) {
	if strings.TrimSpace(request.Plate) != "" {
		return strings.TrimSpace(request.Plate), nil
	}
	if request.PhotoURL != "" && h.recognizer != nil {
		recognized, err := h.recognizer.RecognizePlate(c.Request.Context(), request.PhotoURL)
		if err != nil {
			h.logger.Warn("plate recognition failed", zap.Error(err))
		} else if recognized != "" {
			return recognized, nil
		}
	}
	if request.Caption != "" {
		return ocr.ExtractFromText(request.Caption), nil
	}
	return "", nil
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	rows, err := h.plates.Leaderboard(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	type entry struct {
		PlayerID     int64  `json:"player_id"`
		Username     string `json:"username"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		TotalPoints  int    `json:"total_points"`
		UniquePlates int    `json:"unique_plates"`
	}
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entry{
			PlayerID:     row.PlayerID,
			Username:     row.Username,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			TotalPoints:  row.TotalPoints,
			UniquePlates: row.UniquePlates,
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *httpHandler) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hashtag":            h.hashtag,
		"submission_points":  "each new plate photo earns points once per plate",
		"spotted_bonus":      "registered owners earn a bonus when their plate is spotted by someone else",
		"race_energy_cost":   1,
		"plate_requirements": "letters and digits only, at least 4 characters after normalization",
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
