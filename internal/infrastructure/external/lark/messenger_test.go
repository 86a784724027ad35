package lark

import (
	"context"
	"encoding/json"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
)

type fakeMessages struct {
	reqs []*larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func okResponse() *larkim.CreateMessageResp {
	id := "om_123"
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestMessenger_Notify(t *testing.T) {
	fake := &fakeMessages{resp: okResponse()}
	m := NewMessenger(fake, "user_id", zap.NewNop())

	err := m.Notify(context.Background(), port.Notification{
		RecipientID: "u-emp",
		Title:       "Funds disbursed",
		Body:        "KES 500 was disbursed.\n\nComments: \"cash\"",
		DedupeKey:   "evt-1:u-emp",
	})
	require.NoError(t, err)
	require.Len(t, fake.reqs, 1)

	body := fake.reqs[0].Body
	require.NotNil(t, body)
	assert.Equal(t, "u-emp", *body.ReceiveId)
	assert.Equal(t, "post", *body.MsgType)
	require.NotNil(t, body.Uuid)
	assert.Equal(t, dedupeUUID("evt-1:u-emp"), *body.Uuid)
	assert.LessOrEqual(t, len(*body.Uuid), 50)

	var content map[string]postBody
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	post := content["en_us"]
	assert.Equal(t, "Funds disbursed", post.Title)
	require.Len(t, post.Content, 3)
	assert.Equal(t, `Comments: "cash"`, post.Content[2][0].Text)
}

func TestMessenger_Errors(t *testing.T) {
	m := NewMessenger(&fakeMessages{resp: okResponse()}, "user_id", zap.NewNop())
	assert.Error(t, m.Notify(context.Background(), port.Notification{Body: "x"}))
	assert.Error(t, m.Notify(context.Background(), port.Notification{RecipientID: "u"}))

	failed := okResponse()
	failed.Code = 230001
	failed.Msg = "invalid receive_id"
	m = NewMessenger(&fakeMessages{resp: failed}, "user_id", zap.NewNop())
	err := m.Notify(context.Background(), port.Notification{RecipientID: "u", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230001")
}

func TestDedupeUUID(t *testing.T) {
	a := dedupeUUID("0d8f2c1e-5b7a-4c3e-9f1d-2a6b8c4e0f13:u-accountant-with-a-long-id")
	b := dedupeUUID("0d8f2c1e-5b7a-4c3e-9f1d-2a6b8c4e0f13:u-accountant-with-a-long-iD")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, dedupeUUID("0d8f2c1e-5b7a-4c3e-9f1d-2a6b8c4e0f13:u-accountant-with-a-long-id"))
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{AppID: "cli_x"}.Enabled())
	assert.True(t, Config{AppID: "cli_x", AppSecret: "s"}.Enabled())
}
