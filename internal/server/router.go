package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plateworks/platespot/internal/auth"
	"github.com/plateworks/platespot/internal/notify"
	"github.com/plateworks/platespot/internal/ocr"
	"github.com/plateworks/platespot/internal/plates"
	"github.com/plateworks/platespot/internal/players"
	"github.com/plateworks/platespot/internal/racer"
	"github.com/plateworks/platespot/internal/ratelimit"
)

const (
	playerIDContextKey  = "platespot_player_id"
	requestIDContextKey = "platespot_request_id"
	requestIDHeader     = "X-Request-ID"
	initDataHeader      = "X-Telegram-Init-Data"
)

var (
	errMissingInitDataVerifier = errors.New("init data verifier dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingPlayersService   = errors.New("players service dependency required")
	errMissingPlatesService    = errors.New("plates service dependency required")
	errMissingRacerService     = errors.New("racer service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// InitDataVerifier checks a Telegram WebApp launch payload.
type InitDataVerifier interface {
	Verify(raw string) (auth.WebAppUser, error)
}

// BackendTokenManager issues and validates backend session tokens.
type BackendTokenManager interface {
	IssueToken(ctx context.Context, playerID int64) (string, int64, error)
	ValidateToken(token string) (int64, error)
}

// Dependencies wires the HTTP layer to the domain services. Recognizer,
// Notifier and Limiter are optional; nil disables photo recognition,
// notifications and the submission quota respectively.
type Dependencies struct {
	InitDataVerifier InitDataVerifier
	TokenManager     BackendTokenManager
	PlayersService   *players.Service
	PlatesService    *plates.Service
	RacerService     *racer.Service
	Recognizer       ocr.Recognizer
	Notifier         notify.Notifier
	Limiter          *ratelimit.Limiter
	AdminIDs         []int64
	SubmitsPerDay    int
	Hashtag          string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the full API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.InitDataVerifier == nil {
		return nil, errMissingInitDataVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.PlayersService == nil {
		return nil, errMissingPlayersService
	}
	if deps.PlatesService == nil {
		return nil, errMissingPlatesService
	}
	if deps.RacerService == nil {
		return nil, errMissingRacerService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	handler := &httpHandler{
		verifier:      deps.InitDataVerifier,
		tokens:        deps.TokenManager,
		players:       deps.PlayersService,
		plates:        deps.PlatesService,
		racer:         deps.RacerService,
		recognizer:    deps.Recognizer,
		notifier:      notifier,
		limiter:       deps.Limiter,
		adminIDs:      make(map[int64]bool, len(deps.AdminIDs)),
		submitsPerDay: deps.SubmitsPerDay,
		hashtag:       deps.Hashtag,
		logger:        logger,
	}
	for _, id := range deps.AdminIDs {
		handler.adminIDs[id] = true
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", initDataHeader},
		MaxAge:       12 * time.Hour,
	}))

	router.POST("/auth/telegram", handler.handleTelegramAuth)

	public := router.Group("/api")
	public.GET("/leaderboard", handler.handleLeaderboard)
	public.GET("/racer/leaderboard", handler.handleRacerLeaderboard)
	public.GET("/rules", handler.handleRules)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)
	protected.POST("/plates/register", handler.handleRegisterPlate)
	protected.POST("/plates/delete", handler.handleDeletePlate)
	protected.POST("/submissions", handler.handleSubmission)
	protected.GET("/racer/me", handler.handleRacerMe)
	protected.POST("/racer/garage/buy", handler.handleGarageBuy)
	protected.POST("/racer/garage/upgrade", handler.handleGarageUpgrade)
	protected.POST("/racer/race/start", handler.handleRaceStart)
	protected.GET("/racer/pvp", handler.handleChallengeList)
	protected.POST("/racer/pvp/challenge", handler.handleChallengeCreate)
	protected.POST("/racer/pvp/decline", handler.handleChallengeDecline)
	protected.POST("/racer/pvp/cancel", handler.handleChallengeCancel)
	protected.POST("/racer/pvp/accept", handler.handleChallengeAccept)

	admin := router.Group("/api/admin")
	admin.Use(handler.authorizeRequest, handler.requireAdmin)
	admin.GET("/summary", handler.handleAdminSummary)
	admin.GET("/leaderboard", handler.handleAdminLeaderboard)
	admin.GET("/users", handler.handleAdminUsers)
	admin.POST("/bonus", handler.handleAdminBonus)

	return router, nil
}

type httpHandler struct {
	verifier      InitDataVerifier
	tokens        BackendTokenManager
	players       *players.Service
	plates        *plates.Service
	racer         *racer.Service
	recognizer    ocr.Recognizer
	notifier      notify.Notifier
	limiter       *ratelimit.Limiter
	adminIDs      map[int64]bool
	submitsPerDay int
	hashtag       string
	logger        *zap.Logger
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// authorizeRequest accepts either a backend JWT or a raw Telegram init data
// payload. The init data path upserts the profile, so a fresh client works
// without calling the token exchange first.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		playerID, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.logger.Warn("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(playerIDContextKey, playerID)
		c.Next()
		return
	}

	if raw := c.GetHeader(initDataHeader); raw != "" {
		user, err := h.verifier.Verify(raw)
		if err != nil {
			h.logger.Warn("init data verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authReasonCode(err)})
			return
		}
		if err := h.players.Upsert(c.Request.Context(), user.ID, user.Username, user.FirstName, user.LastName); err != nil {
			h.logger.Error("player upsert failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.Set(playerIDContextKey, user.ID)
		c.Next()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if !h.adminIDs[currentPlayerID(c)] {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func currentPlayerID(c *gin.Context) int64 {
	return c.GetInt64(playerIDContextKey)
}

func authReasonCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInitDataMissing):
		return "NO_DATA"
	case errors.Is(err, auth.ErrInitDataNoHash):
		return "NO_HASH"
	case errors.Is(err, auth.ErrInitDataBadHash):
		return "HASH_MISMATCH"
	case errors.Is(err, auth.ErrInitDataExpired):
		return "EXPIRED"
	default:
		return "VALIDATION_ERROR"
	}
}

// respondDomainError translates service failures into stable HTTP outcomes.
// Anything not recognized as a player-input condition becomes an opaque 500.
func (h *httpHandler) respondDomainError(c *gin.Context, err error) {
	var energyErr *racer.InsufficientEnergyError
	if errors.As(err, &energyErr) {
		body := gin.H{"error": "insufficient_energy", "energy": energyErr.Energy}
		if energyErr.OpponentEnergy >= 0 {
			body["opponent_energy"] = energyErr.OpponentEnergy
		}
		c.JSON(http.StatusTooManyRequests, body)
		return
	}

	switch {
	case errors.Is(err, plates.ErrInvalidPlate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plate"})
	case errors.Is(err, racer.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, racer.ErrAlreadyOwned):
		c.JSON(http.StatusConflict, gin.H{"error": "vehicle_already_owned"})
	case errors.Is(err, racer.ErrNotOwned):
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle_not_owned"})
	case errors.Is(err, racer.ErrNoVehicle):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_vehicle"})
	case errors.Is(err, racer.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, racer.ErrBadState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "challenge_not_pending"})
	case errors.Is(err, racer.ErrChallengeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge_not_found"})
	default:
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
