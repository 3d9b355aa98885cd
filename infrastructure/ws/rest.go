package ws

import (
	"log/slog"
	"strings"
	"time"

	"whisper/auth"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const localUserID = "user_id"

// RestHandler is the request/response fallback surface: credential
// issuance plus a pull-based history read for clients without a live
// channel.
type RestHandler struct {
	log      *slog.Logger
	authSvc  services.IAuthService
	delivery *services.DeliveryService
	tokens   *auth.TokenManager
}

func NewRestHandler(log *slog.Logger, authSvc services.IAuthService,
	delivery *services.DeliveryService, tokens *auth.TokenManager) *RestHandler {
	return &RestHandler{log: log, authSvc: authSvc, delivery: delivery, tokens: tokens}
}

type authResponse struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

func (h *RestHandler) Register(c *fiber.Ctx) error {
	var req auth.CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errors.InvalidArg("malformed request body"))
	}
	token, user, err := h.authSvc.Register(req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse{
		Token:    string(token),
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (h *RestHandler) Login(c *fiber.Ctx) error {
	var req auth.CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errors.InvalidArg("malformed request body"))
	}
	token, user, err := h.authSvc.Login(req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(authResponse{
		Token:    string(token),
		UserID:   user.ID,
		Username: user.Username,
	})
}

// RequireAuth validates a Bearer token and stashes the caller identity
// for downstream handlers.
func (h *RestHandler) RequireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimPrefix(header, "Bearer ")
	claims, err := h.tokens.Validate(token)
	if err != nil {
		return writeError(c, err)
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return writeError(c, errors.Unauthorized("malformed identity claim"))
	}
	c.Locals(localUserID, userID)
	return c.Next()
}

type historyResponse struct {
	Messages   []event.Message `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *time.Time      `json:"nextCursor,omitempty"`
}

func (h *RestHandler) History(c *fiber.Ctx) error {
	userID, ok := c.Locals(localUserID).(uuid.UUID)
	if !ok {
		return writeError(c, errors.Unauthorized("missing identity"))
	}
	partnerID, err := uuid.Parse(c.Params("partnerId"))
	if err != nil {
		return writeError(c, errors.InvalidArg("malformed partner id"))
	}

	limit := c.QueryInt("limit", 50)
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return writeError(c, errors.InvalidArg("malformed cursor"))
		}
		before = &parsed
	}

	page, err := h.delivery.History(c.Context(), domain.HistoryCommand{
		UserID:    userID,
		PartnerID: partnerID,
		Limit:     limit,
		Before:    before,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(historyResponse{
		Messages: lo.Map(page.Messages, func(m domain.Message, _ int) event.Message {
			return event.FromMessage(m)
		}),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	})
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(errors.HTTPStatus(err)).JSON(fiber.Map{
		"code":  errors.CodeOf(err),
		"error": errors.WireMessage(err),
	})
}
