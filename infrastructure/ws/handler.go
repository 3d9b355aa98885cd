package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"whisper/auth"
	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/repositories"
	"whisper/services"
	"whisper/sink"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Handler owns one live connection from upgrade to cleanup: credential
// resolution, registration, event dispatch, and the unconditional
// disconnect path. Every dependency is injected; nothing is reached
// through package state.
type Handler struct {
	log        *slog.Logger
	tokens     *auth.TokenManager
	users      repositories.IUserRepository
	registry   contract.IRegistry
	presence   *services.PresenceService
	delivery   *services.DeliveryService
	receipts   *services.ReceiptService
	mutations  *services.MutationService
	typing     *services.TypingService
	bufferSize int
	timeouts   Timeouts
}

func NewHandler(log *slog.Logger, tokens *auth.TokenManager,
	users repositories.IUserRepository, registry contract.IRegistry,
	presence *services.PresenceService, delivery *services.DeliveryService,
	receipts *services.ReceiptService, mutations *services.MutationService,
	typing *services.TypingService, bufferSize int, timeouts Timeouts) *Handler {
	return &Handler{
		log:        log,
		tokens:     tokens,
		users:      users,
		registry:   registry,
		presence:   presence,
		delivery:   delivery,
		receipts:   receipts,
		mutations:  mutations,
		typing:     typing,
		bufferSize: bufferSize,
		timeouts:   timeouts,
	}
}

// HandleConnection runs for the lifetime of one websocket connection.
// Credential failures reject the connection before any session state
// exists; cleanup is attempted unconditionally on every disconnect.
func (h *Handler) HandleConnection(conn *websocket.Conn) {
	user, err := h.resolveIdentity(conn.Query("token"))
	if err != nil {
		h.rejectUpgrade(conn, err)
		return
	}

	events := sink.New(h.bufferSize)
	session := &contract.Session{
		Handle:      uuid.New(),
		UserID:      user.ID,
		Username:    user.Username,
		ConnectedAt: time.Now().UTC(),
		Sink:        events,
	}
	h.registry.Register(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newClient(conn, session, events, h.log, h.timeouts)
	go c.writePump(ctx)

	// Announce to everyone else before the caller's own ack, then seed
	// the connection acknowledgement through the same ordered channel.
	if err := h.presence.Connected(ctx, session); err != nil {
		h.log.Error("Failed to mark user online", "user_id", user.ID, "error", err)
	}
	_ = events.Consume(ctx, event.Connected{
		UserID:      session.UserID,
		Username:    session.Username,
		ConnectedAt: session.ConnectedAt,
	})

	h.log.Info("User connected", "user_id", user.ID, "username", user.Username)
	c.readLoop(func(envelope Envelope) {
		h.dispatch(ctx, session, envelope)
	})

	// The registry removal is conditional on the session handle: a late
	// disconnect from a replaced session must not tear down its
	// successor's presence.
	if h.registry.Unregister(session.UserID, session.Handle) {
		h.presence.Disconnected(context.Background(), session)
	}
	events.Close()
	h.log.Info("User disconnected", "user_id", user.ID, "username", user.Username)
}

// resolveIdentity validates the connection-time credential and resolves
// it against the user store. Fails closed: absent, malformed, expired,
// or unknown all reject the connection.
func (h *Handler) resolveIdentity(token string) (domain.User, error) {
	claims, err := h.tokens.Validate(token)
	if err != nil {
		return domain.User{}, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return domain.User{}, errors.Unauthorized("malformed identity claim")
	}
	user, err := h.users.GetByID(userID)
	if err != nil {
		// A store failure is not an auth verdict; keep it in the logs
		// before the generic rejection goes out.
		h.logIfInternal("resolve_identity", err)
		return domain.User{}, errors.Unauthorized("unknown identity")
	}
	return user, nil
}

func (h *Handler) rejectUpgrade(conn *websocket.Conn, err error) {
	envelope, encodeErr := newEnvelope(event.Error{
		Event: "connect",
		Error: errors.WireMessage(err),
	})
	if encodeErr == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(h.timeouts.WriteWait))
		_ = conn.WriteJSON(envelope)
	}
	_ = conn.Close()
}

func (h *Handler) dispatch(ctx context.Context, session *contract.Session, envelope Envelope) {
	switch envelope.Event {
	case "send_message":
		h.onSendMessage(ctx, session, envelope.Data)
	case "mark_read":
		h.onMarkRead(ctx, session, envelope.Data)
	case "get_history":
		h.onGetHistory(ctx, session, envelope.Data)
	case "typing":
		h.onTyping(ctx, session, envelope.Data, false)
	case "stop_typing":
		h.onTyping(ctx, session, envelope.Data, true)
	case "edit_message":
		h.onEditMessage(ctx, session, envelope.Data)
	case "delete_message":
		h.onDeleteMessage(ctx, session, envelope.Data)
	case "get_online_users":
		h.onGetOnlineUsers(ctx, session)
	case "get_user_status":
		h.onGetUserStatus(ctx, session, envelope.Data)
	default:
		h.replyError(ctx, session, envelope.Event, errors.InvalidArg("unknown event"))
	}
}

func (h *Handler) onSendMessage(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "send_message", errors.InvalidArg("malformed payload"))
		return
	}
	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil {
		h.ackError(ctx, session, payload.TempID, errors.InvalidArg("malformed receiver id"))
		return
	}

	message, err := h.delivery.Send(ctx, session.UserID, domain.SendMessageCommand{
		ReceiverID: receiverID,
		Content:    payload.Content,
		TempID:     payload.TempID,
	})
	if err != nil {
		h.logIfInternal("send_message", err)
		h.ackError(ctx, session, payload.TempID, err)
		return
	}
	_ = session.Sink.Consume(ctx, event.MessageSent{
		TempID:  payload.TempID,
		Message: event.FromMessage(message),
	})
}

func (h *Handler) onMarkRead(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload markReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "mark_read", errors.InvalidArg("malformed payload"))
		return
	}
	ids, err := parseIDs(payload.MessageIDs)
	if err != nil {
		h.replyError(ctx, session, "mark_read", err)
		return
	}
	if _, err := h.receipts.MarkRead(ctx, domain.MarkReadCommand{
		ReaderID:   session.UserID,
		MessageIDs: ids,
	}); err != nil {
		h.logIfInternal("mark_read", err)
		h.replyError(ctx, session, "mark_read", err)
	}
}

func (h *Handler) onGetHistory(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload historyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "get_history", errors.InvalidArg("malformed payload"))
		return
	}
	partnerID, err := uuid.Parse(payload.PartnerID)
	if err != nil {
		h.replyError(ctx, session, "get_history", errors.InvalidArg("malformed partner id"))
		return
	}
	var before *time.Time
	if payload.Before != nil {
		parsed, err := time.Parse(time.RFC3339Nano, *payload.Before)
		if err != nil {
			h.replyError(ctx, session, "get_history", errors.InvalidArg("malformed cursor"))
			return
		}
		before = &parsed
	}

	page, err := h.delivery.History(ctx, domain.HistoryCommand{
		UserID:    session.UserID,
		PartnerID: partnerID,
		Limit:     payload.Limit,
		Before:    before,
	})
	if err != nil {
		h.logIfInternal("get_history", err)
		h.replyError(ctx, session, "get_history", err)
		return
	}
	_ = session.Sink.Consume(ctx, event.History{
		PartnerID: partnerID,
		Messages: lo.Map(page.Messages, func(m domain.Message, _ int) event.Message {
			return event.FromMessage(m)
		}),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	})
}

func (h *Handler) onTyping(ctx context.Context, session *contract.Session, data json.RawMessage, stopped bool) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil {
		return
	}
	if stopped {
		h.typing.StopTyping(ctx, session, receiverID)
		return
	}
	h.typing.Typing(ctx, session, receiverID)
}

func (h *Handler) onEditMessage(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload editMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "edit_message", errors.InvalidArg("malformed payload"))
		return
	}
	messageID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		h.replyError(ctx, session, "edit_message", errors.InvalidArg("malformed message id"))
		return
	}
	if _, err := h.mutations.Edit(ctx, domain.EditMessageCommand{
		EditorID:  session.UserID,
		MessageID: messageID,
		Content:   payload.Content,
	}); err != nil {
		h.logIfInternal("edit_message", err)
		h.replyError(ctx, session, "edit_message", err)
	}
}

func (h *Handler) onDeleteMessage(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload deleteMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "delete_message", errors.InvalidArg("malformed payload"))
		return
	}
	messageID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		h.replyError(ctx, session, "delete_message", errors.InvalidArg("malformed message id"))
		return
	}
	if _, err := h.mutations.Delete(ctx, domain.DeleteMessageCommand{
		DeleterID: session.UserID,
		MessageID: messageID,
	}); err != nil {
		h.logIfInternal("delete_message", err)
		h.replyError(ctx, session, "delete_message", err)
	}
}

func (h *Handler) onGetOnlineUsers(ctx context.Context, session *contract.Session) {
	users, err := h.presence.OnlineUsers(session.UserID)
	if err != nil {
		h.logIfInternal("get_online_users", err)
		h.replyError(ctx, session, "get_online_users", err)
		return
	}
	_ = session.Sink.Consume(ctx, event.OnlineUsers{
		Users: lo.Map(users, func(u domain.User, _ int) event.UserStatus {
			return toUserStatus(u)
		}),
	})
}

func (h *Handler) onGetUserStatus(ctx context.Context, session *contract.Session, data json.RawMessage) {
	var payload userStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyError(ctx, session, "get_user_status", errors.InvalidArg("malformed payload"))
		return
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		h.replyError(ctx, session, "get_user_status", errors.InvalidArg("malformed user id"))
		return
	}
	user, err := h.presence.Status(userID)
	if err != nil {
		h.logIfInternal("get_user_status", err)
		h.replyError(ctx, session, "get_user_status", err)
		return
	}
	_ = session.Sink.Consume(ctx, toUserStatus(user))
}

// ackError answers a correlated request; replyError answers a
// fire-and-forget one. Both flatten internal errors before the wire.
func (h *Handler) ackError(ctx context.Context, session *contract.Session, tempID string, err error) {
	_ = session.Sink.Consume(ctx, event.MessageError{
		TempID: tempID,
		Error:  errors.WireMessage(err),
	})
}

func (h *Handler) replyError(ctx context.Context, session *contract.Session, inboundEvent string, err error) {
	_ = session.Sink.Consume(ctx, event.Error{
		Event: inboundEvent,
		Error: errors.WireMessage(err),
	})
}

func (h *Handler) logIfInternal(op string, err error) {
	if errors.CodeOf(err) == errors.CodeInternal {
		h.log.Error("Store failure", "op", op, "error", err)
	}
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, errors.InvalidArg("malformed message id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toUserStatus(u domain.User) event.UserStatus {
	return event.UserStatus{
		UserID:   u.ID,
		Username: u.Username,
		Online:   u.Online,
		LastSeen: u.LastSeen,
	}
}
