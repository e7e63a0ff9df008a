package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

// SendMessageInput describes a direct message.
type SendMessageInput struct {
	RecipientID  string `json:"recipientId" validate:"required"`
	Body         string `json:"body" validate:"max=5000"`
	AttachmentID string `json:"attachmentId"`
}

// ConversationInput pages through the messages exchanged with one partner.
type ConversationInput struct {
	PartnerID string     `json:"partnerId" validate:"required"`
	Limit     int        `json:"limit" validate:"omitempty,min=1,max=200"`
	Before    *time.Time `json:"before"`
}

// ChatService handles direct messages between employees.
type ChatService struct {
	chat        persistence.ChatRepository
	users       persistence.UserRepository
	uploads     persistence.UploadRepository
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewChatService constructs a ChatService.
func NewChatService(chat persistence.ChatRepository, users persistence.UserRepository, uploads persistence.UploadRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *ChatService {
	return NewChatServiceWithLogger(chat, users, uploads, notifier, idGenerator, now, nil)
}

// NewChatServiceWithLogger constructs a ChatService with a specified logger.
func NewChatServiceWithLogger(chat persistence.ChatRepository, users persistence.UserRepository, uploads persistence.UploadRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ChatService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		chat:        chat,
		users:       users,
		uploads:     uploads,
		notifier:    notifierOrNoop(notifier),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ChatService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ChatService", operation, attrs...)
}

// Send delivers a message to an active recipient and notifies them.
func (s *ChatService) Send(ctx context.Context, principal Principal, input SendMessageInput) (result ChatMessage, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Send", "user_id", principal.UserID, "recipient_id", input.RecipientID)
	defer func() { logOutcome(ctx, logger, err, "message sent", "message_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Body = strings.TrimSpace(input.Body)
	input.AttachmentID = strings.TrimSpace(input.AttachmentID)
	vErr := validateInput(input)
	if input.Body == "" && input.AttachmentID == "" {
		vErr.add("body", "body or attachmentId is required")
	}
	if input.RecipientID == principal.UserID {
		vErr.add("recipientId", "cannot send a message to yourself")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var recipient persistence.User
	if recipient, err = s.users.GetUser(ctx, input.RecipientID); err != nil {
		err = mapStoreError(err, "recipient")
		return
	}
	if !recipient.Active {
		err = badRequest("the recipient account is disabled")
		return
	}

	if input.AttachmentID != "" {
		var upload persistence.Upload
		if upload, err = s.uploads.GetUpload(ctx, input.AttachmentID); err != nil {
			err = mapStoreError(err, "attachment")
			return
		}
		if upload.UserID != principal.UserID {
			err = forbidden("attachments must be uploaded by the sender")
			return
		}
	}

	record := persistence.ChatMessage{
		ID:           s.idGenerator(),
		SenderID:     principal.UserID,
		RecipientID:  recipient.ID,
		Body:         input.Body,
		AttachmentID: stringPtrOrNil(input.AttachmentID),
		CreatedAt:    s.now(),
	}
	if err = s.chat.CreateMessage(ctx, record); err != nil {
		err = mapStoreError(err, "message")
		return
	}

	s.notifier.Notify(ctx, NotificationInput{
		UserID:  recipient.ID,
		Kind:    NotificationChatMessage,
		Title:   "新しいメッセージがあります",
		Message: messagePreview(record.Body),
		Link:    "/chat/" + principal.UserID,
	})

	result = messageFromRecord(record)
	return
}

// Conversation lists messages exchanged with a partner, newest first.
func (s *ChatService) Conversation(ctx context.Context, principal Principal, input ConversationInput) ([]ChatMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("ChatService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = defaultConversationLimit
	}
	records, err := s.chat.ListConversation(ctx, principal.UserID, input.PartnerID, input.Before, min(limit, maxConversationLimit))
	if err != nil {
		return nil, err
	}
	messages := make([]ChatMessage, 0, len(records))
	for _, r := range records {
		messages = append(messages, messageFromRecord(r))
	}
	return messages, nil
}

// Conversations lists the caller's chat partners with the latest message and unread count.
func (s *ChatService) Conversations(ctx context.Context, principal Principal) ([]Conversation, error) {
	if s == nil {
		return nil, fmt.Errorf("ChatService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	records, err := s.chat.ListConversations(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	conversations := make([]Conversation, 0, len(records))
	for _, r := range records {
		partner, err := s.users.GetUser(ctx, r.PartnerID)
		if err != nil {
			if isStoreNotFound(err) {
				continue
			}
			return nil, err
		}
		conversations = append(conversations, Conversation{
			Partner:     directoryEntryFromRecord(partner),
			LastMessage: messageFromRecord(r.LastMessage),
			UnreadCount: r.UnreadCount,
		})
	}
	return conversations, nil
}

// MarkRead marks every message from partnerID to the caller as read.
func (s *ChatService) MarkRead(ctx context.Context, principal Principal, partnerID string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("ChatService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return 0, err
	}
	if strings.TrimSpace(partnerID) == "" {
		vErr := &ValidationError{}
		vErr.add("partnerId", "partnerId is required")
		return 0, vErr
	}
	return s.chat.MarkConversationRead(ctx, principal.UserID, partnerID, s.now())
}

// UnreadCount counts unread messages addressed to the caller.
func (s *ChatService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("ChatService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return 0, err
	}
	return s.chat.CountUnread(ctx, principal.UserID)
}

func messagePreview(body string) string {
	const maxRunes = 80
	runes := []rune(body)
	if len(runes) <= maxRunes {
		return body
	}
	return string(runes[:maxRunes]) + "…"
}
