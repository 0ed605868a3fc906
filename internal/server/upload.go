package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/chathelp/relay/pkg/transcribe"
)

var allowedAudioMIME = regexp.MustCompile(`^audio/(wav|x-wav|webm)$`)

type uploadResponse struct {
	Transcription string `json:"transcription,omitempty"`
	Error         string `json:"error,omitempty"`
	Details       string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body uploadResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("server: upload response write failed", "err", err)
	}
}

// handleProcessAudio accepts one multipart audio file, transcribes it, and
// returns the transcription. The spool file is removed on every path. When
// the request names a live session, the transcription is also enqueued
// there so the answer comes back over the realtime channel.
func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.transcriber == nil {
		writeJSON(w, http.StatusServiceUnavailable, uploadResponse{Error: "Распознавание речи недоступно"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Аудиофайл не загружен"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["audio"]
	if len(files) != 1 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Аудиофайл не загружен"})
		return
	}
	header := files[0]

	ctype := header.Header.Get("Content-Type")
	if !allowedAudioMIME.MatchString(ctype) {
		slog.Warn("server: unsupported upload format", "type", ctype)
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Неподдерживаемый формат аудио"})
		return
	}
	if header.Size == 0 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Аудиофайл пустой"})
		return
	}

	src, err := header.Open()
	if err != nil {
		slog.Error("server: upload open failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Ошибка при обработке аудио", Details: err.Error()})
		return
	}
	defer src.Close()

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".webm"
	}
	spool := filepath.Join(s.cfg.UploadDir, uuid.NewString()+ext)
	dst, err := os.Create(spool)
	if err != nil {
		slog.Error("server: upload spool failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Ошибка при обработке аудио", Details: err.Error()})
		return
	}
	defer os.Remove(spool)

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		slog.Error("server: upload spool write failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Ошибка при обработке аудио", Details: err.Error()})
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), spool)
	if err != nil {
		if errors.Is(err, transcribe.ErrEmptyTranscript) {
			writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Не удалось распознать речь"})
			return
		}
		slog.Error("server: transcription failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Ошибка при распознавании речи", Details: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Transcription: text})

	// The answer is produced out of band over the realtime channel.
	if id := r.FormValue("session"); id != "" {
		if sess, ok := s.manager.Get(id); ok {
			s.dispatcher.Enqueue(sess, text)
		} else {
			slog.Debug("server: upload for unknown session", "session", id)
		}
	}
}
