package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
)

// MessageCreator is the slice of the IM API the messenger needs
type MessageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.Notifier with Lark rich-text messages
type Messenger struct {
	messages      MessageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewMessenger creates a new Lark notifier
func NewMessenger(messages MessageCreator, receiveIDType string, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages:      messages,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// postContent builds the "post" message payload; one paragraph per body line
func postContent(title, body string) (string, error) {
	paragraphs := [][]postElement{}
	for _, line := range strings.Split(body, "\n") {
		paragraphs = append(paragraphs, []postElement{{Tag: "text", Text: line}})
	}
	data, err := json.Marshal(map[string]postBody{
		"en_us": {Title: title, Content: paragraphs},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(data), nil
}

// Notify sends one message to one recipient
func (m *Messenger) Notify(ctx context.Context, n port.Notification) error {
	if n.RecipientID == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if n.Body == "" {
		return fmt.Errorf("content cannot be empty")
	}

	content, err := postContent(n.Title, n.Body)
	if err != nil {
		return err
	}

	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(n.RecipientID).
		MsgType("post").
		Content(content)
	if n.DedupeKey != "" {
		// Lark drops a repeated uuid within an hour
		body = body.Uuid(dedupeUUID(n.DedupeKey))
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(m.receiveIDType).
		Body(body.Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", n.RecipientID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", n.RecipientID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", n.RecipientID))

	return nil
}

// dedupeUUID maps a key of any length onto the 50 character uuid field
func dedupeUUID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

var _ port.Notifier = (*Messenger)(nil)
