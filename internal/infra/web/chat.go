package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/infra/logging"
	"voice-companion/internal/infra/metrics"
	"voice-companion/internal/infra/redis"
	"voice-companion/internal/usecase"
)

type chatResponse struct {
	TurnID         string              `json:"turn_id"`
	Character      string              `json:"character"`
	UserText       string              `json:"user_text"`
	AIText         string              `json:"ai_text"`
	SpeechText     string              `json:"speech_text"` // ai_text as spoken, links stripped
	Audio          string              `json:"audio,omitempty"`
	AudioFormat    string              `json:"audio_format,omitempty"`
	EmotionPercent map[string]int      `json:"emotion_percent"`
	TopEmotion     string              `json:"top_emotion"`
	Track          model.Track         `json:"track"`
	Links          []model.Link        `json:"links,omitempty"`
	Degraded       []model.Degradation `json:"degraded,omitempty"`
}

// newChatResponse flattens a result. Audio is wrapped as WAV so browsers
// can play it directly.
func newChatResponse(res *model.TurnResult, withAudio bool) chatResponse {
	out := chatResponse{
		TurnID:         res.TurnID,
		Character:      res.Character,
		UserText:       res.User.Text,
		AIText:         res.AIText,
		SpeechText:     res.SpeechText,
		EmotionPercent: res.Emotion.Percentages(),
		TopEmotion:     res.Emotion.Dominant.LocalName(),
		Track:          res.Track,
		Links:          res.Links,
		Degraded:       res.Degraded,
	}
	if withAudio && res.HasAudio() {
		out.Audio = base64.StdEncoding.EncodeToString(model.PCM{Data: res.Audio}.WAV())
		out.AudioFormat = "wav"
	}
	return out
}

func uploadFormat(r *http.Request, hdr *multipart.FileHeader) string {
	if f := strings.TrimSpace(r.FormValue("format")); f != "" {
		return f
	}
	if ct := hdr.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(hdr.Filename)), ".")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	req := usecase.TurnRequest{
		Audio:      audio,
		Format:     uploadFormat(r, hdr),
		Character:  r.FormValue("character"),
		SessionKey: SessionKeyFrom(r.Context()),
	}
	res, err := s.d.Turns.HandleTurn(r.Context(), req)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("turn failed")
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "turn timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse(res, true))
}

// ---- websocket stream ----

type streamHello struct {
	Character string `json:"character"`
	Format    string `json:"format"`
}

type streamEvent struct {
	Type           string          `json:"type"`
	State          model.TurnState `json:"state,omitempty"`
	Text           string          `json:"text,omitempty"`
	EmotionPercent map[string]int  `json:"emotion_percent,omitempty"`
	TopEmotion     string          `json:"top_emotion,omitempty"`
	Result         *chatResponse   `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Code           int             `json:"code,omitempty"`
}

type wsFrame struct {
	kind int
	data []byte
}

const wsWriteTimeout = 10 * time.Second

// wsConn serialises writes; only the handler goroutine writes.
type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) json(ev streamEvent) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(ev)
}

func (c wsConn) binary(b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// handleChatStream runs turns over one websocket. The client sends a JSON
// text frame {"character","format"} and then the audio as one binary
// frame; it may repeat for further turns. Server events are JSON text
// frames, synthesized audio goes out as binary PCM frames. Closing the
// socket cancels the turn in flight.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	metrics.WSConnected()
	defer metrics.WSDisconnected()
	conn.SetReadLimit(s.cfg.MaxUploadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	key := SessionKeyFrom(ctx)
	log := logging.With(ctx, s.log)
	ws := wsConn{conn: conn}

	frames := make(chan wsFrame, 2)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("websocket read ended")
				}
				return
			}
			select {
			case frames <- wsFrame{kind: kind, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var hello streamHello
	for f := range frames {
		switch f.kind {
		case websocket.TextMessage:
			var h streamHello
			if err := json.Unmarshal(f.data, &h); err != nil {
				if ws.json(streamEvent{Type: "error", Error: "invalid hello frame", Code: http.StatusBadRequest}) != nil {
					return
				}
				continue
			}
			hello = h
		case websocket.BinaryMessage:
			if !s.allowTurn(ctx, key) {
				metrics.IncRateLimitTriggered("/api/chat/stream")
				if ws.json(streamEvent{Type: "error", Error: domain.ErrRateLimited.Error(), Code: http.StatusTooManyRequests}) != nil {
					return
				}
				continue
			}
			req := usecase.TurnRequest{
				Audio:      f.data,
				Format:     hello.Format,
				Character:  hello.Character,
				SessionKey: key,
			}
			if !s.pumpTurn(ctx, cancel, ws, req) {
				return
			}
		}
	}
}

func (s *Server) allowTurn(ctx context.Context, key string) bool {
	if s.d.Limiter == nil {
		return true
	}
	ok, err := s.d.Limiter.Allow(ctx, redis.SessionRouteKey(key, "chat"))
	if err != nil {
		return true
	}
	return ok
}

// pumpTurn forwards one turn's events. It returns false once the socket
// is unusable; the turn is then cancelled and its channel drained.
func (s *Server) pumpTurn(ctx context.Context, cancel context.CancelFunc, ws wsConn, req usecase.TurnRequest) bool {
	alive := true
	for ev := range s.d.Turns.StreamTurn(ctx, req) {
		if !alive {
			continue
		}
		var err error
		switch ev.Kind {
		case model.EventState:
			err = ws.json(streamEvent{Type: "state", State: ev.State})
		case model.EventTranscript:
			err = ws.json(streamEvent{Type: "transcript", Text: ev.Text})
		case model.EventEmotion:
			if ev.Emotion != nil {
				err = ws.json(streamEvent{Type: "emotion", EmotionPercent: ev.Emotion.Percentages(), TopEmotion: ev.Emotion.Dominant.LocalName()})
			}
		case model.EventTextDelta:
			err = ws.json(streamEvent{Type: "text_delta", Text: ev.Text})
		case model.EventAudioChunk:
			err = ws.binary(ev.Audio)
		case model.EventResult:
			res := newChatResponse(ev.Result, false)
			err = ws.json(streamEvent{Type: "result", State: model.StateCompleted, Result: &res})
		case model.EventError:
			msg := "turn failed"
			if errors.Is(ev.Err, context.Canceled) {
				msg = "turn cancelled"
			}
			err = ws.json(streamEvent{Type: "error", State: model.StateErrored, Error: msg, Code: http.StatusInternalServerError})
		}
		if err != nil {
			alive = false
			cancel()
		}
	}
	return alive && ctx.Err() == nil
}
