package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type WSHandler struct {
	service  *app.AttemptService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// answerPayload carries either one value or, for multi-choice, the full selection.
type answerPayload struct {
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"value"`
	Checked    *bool           `json:"checked"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}

// ServeWS upgrades to a websocket bound to the caller's attempt at one quiz.
// Every state change is pushed as a snapshot; reconnecting re-attaches to the same attempt.
func (h *WSHandler) ServeWS(c *gin.Context) {
	r := c.Request
	quizID := c.Query("quizId")
	if quizID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing quizId"})
		return
	}
	userID := c.GetString(ctxUserID)
	log := h.log.WithFields(logrus.Fields{"quiz_id": quizID, "user_id": userID})

	conn, err := h.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	_, err = h.service.Open(r.Context(), app.OpenRequest{
		QuizID:   quizID,
		UserID:   userID,
		CourseID: c.Query("courseId"),
		WeekID:   c.Query("weekId"),
		Token:    c.GetString(ctxToken),
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), quizID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.dispatch(r.Context(), quizID, userID, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one inbound action. State changes reach the client through the
// subscription, so only errors and submit acknowledgements are returned here.
func (h *WSHandler) dispatch(ctx context.Context, quizID, userID string, inbound inboundMessage) (outboundMessage[any], bool) {
	var (
		snap app.Snapshot
		err  error
	)
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
			return errorMessage(errors.New("invalid answer payload")), true
		}
		err = h.applyAnswer(ctx, quizID, userID, payload)
	case "start":
		_, err = h.service.Start(ctx, quizID, userID)
	case "submit":
		snap, err = h.service.Submit(ctx, quizID, userID)
		if err == nil {
			return outboundMessage[any]{Type: "submitted", Payload: snap}, true
		}
	case "retake":
		_, err = h.service.Retake(ctx, quizID, userID)
	case "refresh":
		_, err = h.service.Refresh(ctx, quizID, userID)
	default:
		err = errors.New("unsupported message type")
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{}, false
}

func (h *WSHandler) applyAnswer(ctx context.Context, quizID, userID string, payload answerPayload) error {
	checked := payload.Checked == nil || *payload.Checked

	var single string
	if err := json.Unmarshal(payload.Value, &single); err == nil {
		_, err := h.service.SetAnswer(ctx, quizID, userID, payload.QuestionID, single, checked)
		return err
	}

	var selection []string
	if err := json.Unmarshal(payload.Value, &selection); err != nil {
		return errors.New("answer value must be a string or a list of strings")
	}
	current, err := h.service.Snapshot(quizID, userID)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(selection))
	for _, v := range selection {
		want[v] = true
	}
	for _, v := range current.Answers[payload.QuestionID].Values {
		if !want[v] {
			if _, err := h.service.SetAnswer(ctx, quizID, userID, payload.QuestionID, v, false); err != nil {
				return err
			}
		}
	}
	for _, v := range selection {
		if _, err := h.service.SetAnswer(ctx, quizID, userID, payload.QuestionID, v, true); err != nil {
			return err
		}
	}
	return nil
}

func errorMessage(err error) outboundMessage[any] {
	payload := errorPayload{Message: err.Error()}
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		payload.Missing = invalid.Missing
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}
