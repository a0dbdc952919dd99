package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatrelay/internal/delivery"
	"chatrelay/internal/session"
	"chatrelay/internal/storage"
	mytesting "chatrelay/internal/testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

type fakeAuth struct {
	tokens map[string]int64
}

func (f *fakeAuth) Create(_ context.Context, userID int64) (string, error) {
	token := mytesting.RandString()
	f.tokens[token] = userID
	return token, nil
}

func (f *fakeAuth) Identity(_ context.Context, token string) (int64, error) {
	id, ok := f.tokens[token]
	if !ok {
		return 0, session.ErrUnauthorized
	}
	return id, nil
}

func (f *fakeAuth) Destroy(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

type fakeDeliverer struct {
	sendErr  error
	listErr  error
	messages []delivery.Message
	peers    []delivery.Peer
	nextID   int64
}

func (f *fakeDeliverer) Send(_ context.Context, senderID, receiverID int64, text, mediaURL string) (delivery.Message, error) {
	if f.sendErr != nil {
		return delivery.Message{}, f.sendErr
	}
	f.nextID++
	m := delivery.Message{
		ID:         f.nextID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       text,
		MediaURL:   mediaURL,
		CreatedAt:  time.Now(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeDeliverer) ListConversation(_ context.Context, _, _ int64, _ int, _ int64) ([]delivery.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeDeliverer) ListPeers(_ context.Context, _ int64) ([]delivery.Peer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.peers, nil
}

type fakeUsers struct {
	ids map[int64]bool
}

func (f *fakeUsers) UserByID(_ context.Context, id int64) (storage.User, error) {
	if !f.ids[id] {
		return storage.User{}, storage.ErrUserNotExist
	}
	return storage.User{ID: id, Username: "user"}, nil
}

func bootstrapHandler(t *testing.T) (*handler, *fakeAuth, *fakeDeliverer) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	auth := &fakeAuth{tokens: make(map[string]int64)}
	svc := &fakeDeliverer{}

	h := &handler{
		logger:   logger.Sugar(),
		auth:     auth,
		delivery: svc,
		users:    &fakeUsers{ids: map[int64]bool{1: true, 2: true}},
	}

	return h, auth, svc
}

func authedRequest(t *testing.T, auth *fakeAuth, userID int64, target, body string) *http.Request {
	token, err := auth.Create(context.Background(), userID)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", target, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return req
}

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestEnforcePostJson(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBufferString(`{"userId":1}`)
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforcePostJsonNotPost(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/", bytes.NewBufferString(`{"userId":1}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestEnforcePostJsonUnsupportedContentType(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{"userId":1}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, "Content-Type header must be application/json\n", rr.Body.String())
}

func TestEnforcePostJsonMalformedJSON(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{"userId":`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed JSON\n", rr.Body.String())
}

func TestEnforcePostJsonNoBody(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBuffer(nil))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := enforcePostJson(http.HandlerFunc(statusOkHandler))

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "No body provided\n", rr.Body.String())
}

func TestLogin(t *testing.T) {
	t.Parallel()

	h, _, _ := bootstrapHandler(t)

	req, err := http.NewRequest("POST", "/session/login", bytes.NewBufferString(`{"userId":1}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.login).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var p fastjson.Parser
	v, err := p.ParseBytes(rr.Body.Bytes())
	require.NoError(t, err)
	require.NotEmpty(t, string(v.GetStringBytes("token")))
}

func TestLoginMissingUserID(t *testing.T) {
	t.Parallel()

	h, _, _ := bootstrapHandler(t)

	req, err := http.NewRequest("POST", "/session/login", bytes.NewBufferString(`{"name":"bob"}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.login).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	t.Parallel()

	h, _, _ := bootstrapHandler(t)

	req, err := http.NewRequest("POST", "/session/login", bytes.NewBufferString(`{"userId":404}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.login).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "User does not exist\n", rr.Body.String())
}

func TestLogout(t *testing.T) {
	t.Parallel()

	h, auth, _ := bootstrapHandler(t)

	req := authedRequest(t, auth, 1, "/session/logout", `{}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.logout).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, auth.tokens)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	h, auth, _ := bootstrapHandler(t)

	req := authedRequest(t, auth, 1, "/messages/send", `{"receiver":2,"text":"hi"}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var p fastjson.Parser
	v, err := p.ParseBytes(rr.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, int64(1), v.GetInt64("id"))
	require.Equal(t, int64(1), v.GetInt64("senderId"))
	require.Equal(t, int64(2), v.GetInt64("receiverId"))
	require.Equal(t, "hi", string(v.GetStringBytes("body")))
}

func TestSendMessageUnauthorized(t *testing.T) {
	t.Parallel()

	h, _, _ := bootstrapHandler(t)

	req, err := http.NewRequest("POST", "/messages/send", bytes.NewBufferString(`{"receiver":2,"text":"hi"}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSendMessageMissingReceiver(t *testing.T) {
	t.Parallel()

	h, auth, _ := bootstrapHandler(t)

	req := authedRequest(t, auth, 1, "/messages/send", `{"text":"hi"}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendMessageInvalidRecipient(t *testing.T) {
	t.Parallel()

	h, auth, svc := bootstrapHandler(t)
	svc.sendErr = delivery.ErrInvalidRecipient

	req := authedRequest(t, auth, 1, "/messages/send", `{"receiver":404,"text":"hi"}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendMessageInvalidPayload(t *testing.T) {
	t.Parallel()

	h, auth, svc := bootstrapHandler(t)
	svc.sendErr = delivery.ErrInvalidPayload

	req := authedRequest(t, auth, 1, "/messages/send", `{"receiver":2,"text":""}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendMessageStoreUnavailable(t *testing.T) {
	t.Parallel()

	h, auth, svc := bootstrapHandler(t)
	svc.sendErr = delivery.ErrStoreUnavailable

	req := authedRequest(t, auth, 1, "/messages/send", `{"receiver":2,"text":"hi"}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.sendMessage).ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestConversation(t *testing.T) {
	t.Parallel()

	h, auth, svc := bootstrapHandler(t)
	svc.messages = []delivery.Message{
		{ID: 1, SenderID: 1, ReceiverID: 2, Body: "one", CreatedAt: time.Now()},
		{ID: 2, SenderID: 2, ReceiverID: 1, Body: "two", CreatedAt: time.Now()},
	}

	req := authedRequest(t, auth, 1, "/messages/get", `{"peer":2}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.conversation).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var p fastjson.Parser
	v, err := p.ParseBytes(rr.Body.Bytes())
	require.NoError(t, err)
	items, err := v.Array()
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "one", string(items[0].GetStringBytes("body")))
}

func TestConversationMissingPeer(t *testing.T) {
	t.Parallel()

	h, auth, _ := bootstrapHandler(t)

	req := authedRequest(t, auth, 1, "/messages/get", `{}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.conversation).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConversationUnauthorized(t *testing.T) {
	t.Parallel()

	h, _, _ := bootstrapHandler(t)

	req, err := http.NewRequest("POST", "/messages/get", bytes.NewBufferString(`{"peer":2}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.conversation).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPeers(t *testing.T) {
	t.Parallel()

	h, auth, svc := bootstrapHandler(t)
	svc.peers = []delivery.Peer{
		{ID: 2, Username: "bob", LastActive: time.Now()},
	}

	req := authedRequest(t, auth, 1, "/peers/get", `{}`)
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.peers).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var p fastjson.Parser
	v, err := p.ParseBytes(rr.Body.Bytes())
	require.NoError(t, err)
	items, err := v.Array()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(2), items[0].GetInt64("id"))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", nil)
	require.NoError(t, err)

	require.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc")
	require.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	require.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, bearerToken(req))
}
