package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/domain/event"
	"github.com/garyjia/claim-review/internal/notification"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// MessageCreator is the slice of the IM API the notifier needs
type MessageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Notifier sends each event as a text message to its recipient
type Notifier struct {
	messages      MessageCreator
	receiveIDType string
	roleChats     map[string]string
	logger        *zap.Logger
}

var _ port.EventSink = (*Notifier)(nil)

// NewNotifier creates a notifier backed by a fresh SDK client
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	return NewNotifierWithCreator(NewSDKClient(cfg).Im.Message, cfg, logger)
}

// NewNotifierWithCreator creates a notifier on an existing message API
func NewNotifierWithCreator(messages MessageCreator, cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = "open_id"
	}
	return &Notifier{
		messages:      messages,
		receiveIDType: idType,
		roleChats:     cfg.RoleChats,
		logger:        logger,
	}
}

// Name implements port.EventSink
func (n *Notifier) Name() string { return "lark" }

// Send implements port.EventSink. Role recipients without a mapped chat are skipped.
func (n *Notifier) Send(ctx context.Context, evt *event.Event) error {
	idType, receiveID, ok := n.route(evt.Recipient)
	if !ok {
		n.logger.Debug("No Lark destination for recipient",
			zap.String("recipient", evt.Recipient),
			zap.String("event_id", evt.ID))
		return nil
	}

	content, err := json.Marshal(map[string]string{"text": notification.Render(evt)})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(idType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("text").
			Content(string(content)).
			Uuid(evt.ID).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Info("Message sent successfully",
		zap.String("event_id", evt.ID),
		zap.String("receive_id", receiveID))
	return nil
}

func (n *Notifier) route(recipient string) (idType, id string, ok bool) {
	if recipient == "" || recipient == entity.SystemActor {
		return "", "", false
	}
	if role, isRole := strings.CutPrefix(recipient, entity.RolePrefix); isRole {
		chat, found := n.roleChats[role]
		if !found || chat == "" {
			return "", "", false
		}
		return "chat_id", chat, true
	}
	return n.receiveIDType, recipient, true
}
