package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strings"

	"chatrelay/internal/delivery"
	"chatrelay/internal/session"
	"chatrelay/internal/storage"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

type parsers struct {
	loginPool        fastjson.ParserPool
	sendMessagePool  fastjson.ParserPool
	conversationPool fastjson.ParserPool
}

// Authenticator issues and resolves session tokens
type Authenticator interface {
	Create(ctx context.Context, userID int64) (string, error)
	Identity(ctx context.Context, token string) (int64, error)
	Destroy(ctx context.Context, token string) error
}

// Deliverer covers the message operations exposed over HTTP
type Deliverer interface {
	Send(ctx context.Context, senderID, receiverID int64, text, mediaURL string) (delivery.Message, error)
	ListConversation(ctx context.Context, userID, peerID int64, limit int, beforeID int64) ([]delivery.Message, error)
	ListPeers(ctx context.Context, userID int64) ([]delivery.Peer, error)
}

// UserDirectory resolves user ids during login
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (storage.User, error)
}

type handler struct {
	logger   *zap.SugaredLogger
	auth     Authenticator
	delivery Deliverer
	users    UserDirectory
	parsers  parsers
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// authorize resolves the caller's identity from the bearer token
func (h *handler) authorize(r *http.Request) (int64, error) {
	return h.auth.Identity(r.Context(), bearerToken(r))
}

// login handles HTTP requests on "/session/login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("userId") {
		http.Error(w, "Missing Field \"userId\"", http.StatusBadRequest)
		return
	}

	userID, err := v.Get("userId").Int64()
	if err != nil {
		http.Error(w, "Field \"userId\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if userID < 1 {
		http.Error(w, "Field \"userId\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	if _, err := h.users.UserByID(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.auth.Create(r.Context(), userID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payload := []byte(`{"token":"` + token + `"}`)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// logout handles HTTP requests on "/session/logout" endpoint
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.auth.Destroy(r.Context(), token); err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sendMessage handles HTTP requests on "/messages/send" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authorize(r)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.sendMessagePool.Get()
	defer h.parsers.sendMessagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	// retrieving receiver id
	if !v.Exists("receiver") {
		http.Error(w, "Missing Field \"receiver\"", http.StatusBadRequest)
		return
	}

	receiverID, err := v.Get("receiver").Int64()
	if err != nil {
		http.Error(w, "Field \"receiver\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if receiverID < 1 {
		http.Error(w, "Field \"receiver\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	// retrieving body parts, both optional but not both blank
	var text, media string
	if v.Exists("text") {
		textValue := v.Get("text")
		if textValue.Type() != fastjson.TypeString {
			http.Error(w, "Field \"text\" must be a string", http.StatusBadRequest)
			return
		}
		text = string(textValue.GetStringBytes())
	}
	if v.Exists("media") {
		mediaValue := v.Get("media")
		if mediaValue.Type() != fastjson.TypeString {
			http.Error(w, "Field \"media\" must be a string", http.StatusBadRequest)
			return
		}
		media = string(mediaValue.GetStringBytes())
	}

	msg, err := h.delivery.Send(r.Context(), callerID, receiverID, text, media)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrInvalidRecipient):
			http.Error(w, "Receiver with provided id does not exist", http.StatusBadRequest)
		case errors.Is(err, delivery.ErrInvalidPayload):
			http.Error(w, "Message body must be non-empty text or a media reference", http.StatusBadRequest)
		case errors.Is(err, delivery.ErrStoreUnavailable):
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// conversation handles HTTP requests on "/messages/get" endpoint
func (h *handler) conversation(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authorize(r)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.conversationPool.Get()
	defer h.parsers.conversationPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("peer") {
		http.Error(w, "Missing Field \"peer\"", http.StatusBadRequest)
		return
	}

	peerID, err := v.Get("peer").Int64()
	if err != nil {
		http.Error(w, "Field \"peer\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if peerID < 1 {
		http.Error(w, "Field \"peer\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	limit := v.GetInt("limit")
	beforeID := v.GetInt64("before")

	messages, err := h.delivery.ListConversation(r.Context(), callerID, peerID, limit, beforeID)
	if err != nil {
		if errors.Is(err, delivery.ErrStoreUnavailable) {
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// peers handles HTTP requests on "/peers/get" endpoint
func (h *handler) peers(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authorize(r)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	peers, err := h.delivery.ListPeers(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, delivery.ErrStoreUnavailable) {
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(peers)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}
