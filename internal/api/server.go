package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"docchat/internal/config"
	"docchat/internal/coordinator"
	"docchat/internal/ingest"
	"docchat/internal/rag"
	"docchat/internal/telegram"
	"docchat/internal/util"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg      config.Config
	coord    *coordinator.Coordinator
	registry *telegram.Registry
	log      *logrus.Entry
}

func NewServer(cfg config.Config, coord *coordinator.Coordinator, registry *telegram.Registry) *Server {
	return &Server{
		cfg:      cfg,
		coord:    coord,
		registry: registry,
		log:      logrus.WithField("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/database", s.handleDatabase)
	mux.HandleFunc("/database/", s.handleDatabaseScoped)
	mux.HandleFunc("/setup_telegram_bot", s.handleSetupTelegramBot)
	mux.HandleFunc("/telegram/webhook/", s.handleTelegramWebhook)
	mux.Handle("/metrics", metricsHandler())
	return withCORS(instrument(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Question   string `json:"question"`
		Collection string `json:"collection_name"`
		SessionID  string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.Collection = strings.TrimSpace(req.Collection)
	if req.Question == "" || req.Collection == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question and collection_name are required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.log.WithFields(logrus.Fields{"collection": req.Collection, "session": req.SessionID}).Info("chat request received")

	res, err := s.coord.SubmitAnswer(r.Context(), req.Question, req.Collection, req.SessionID).Wait(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrModelUnavailable):
			writeErr(w, http.StatusBadGateway, err)
		case errors.Is(err, rag.ErrStoreUnavailable):
			writeErr(w, http.StatusInternalServerError, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":          res.Answer,
		"collection_name": res.Collection,
		"session_id":      res.SessionID,
		"sources":         res.Sources,
	})
}

func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	collection := strings.TrimSpace(r.FormValue("collection_name"))
	if collection == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("collection_name is required"))
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("document file is required"))
		return
	}
	defer file.Close()

	path, err := s.saveDocument(file, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Failed to upload document: " + err.Error(),
		})
		return
	}

	s.log.WithFields(logrus.Fields{"collection": collection, "source": filepath.Base(path)}).Info("database request received")

	if _, err := s.coord.SubmitIngest(r.Context(), path, collection).Wait(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrLoadFailed) || errors.Is(err, ingest.ErrEmptyDocument) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{
			"message": fmt.Sprintf("Failed to create database %s: %s", collection, err.Error()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Database %s created successfully", collection),
	})
}

func (s *Server) handleDatabaseScoped(w http.ResponseWriter, r *http.Request) {
	collection := strings.Trim(strings.TrimPrefix(r.URL.Path, "/database/"), "/")
	if collection == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodDelete {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	existed, err := s.coord.DeleteCollection(r.Context(), collection)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": existed})
}

func (s *Server) handleSetupTelegramBot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Token       string `json:"token"`
		BotUsername string `json:"bot_username"`
		InitialText string `json:"initial_text"`
		HelpText    string `json:"help_text"`
		Collection  string `json:"collection_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Token is required"})
		return
	}
	if strings.TrimSpace(req.Collection) == "" {
		req.Collection = s.cfg.DefaultCollection
	}

	err := s.registry.Configure(r.Context(), telegram.ChannelConfig{
		Token:       req.Token,
		BotUsername: req.BotUsername,
		InitialText: req.InitialText,
		HelpText:    req.HelpText,
		Collection:  req.Collection,
	})
	if err != nil {
		s.log.WithError(err).Error("telegram bot setup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to set webhook"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Telegram Bot set up successfully"})
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	botUsername := strings.Trim(strings.TrimPrefix(r.URL.Path, "/telegram/webhook/"), "/")
	if botUsername == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := s.registry.Dispatch(r.Context(), botUsername, upd); err != nil {
		if errors.Is(err, telegram.ErrUnknownBot) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// saveDocument persists an uploaded file under the data root before the
// pipeline reads it back. A zero-byte upload is rejected here, not in
// the pipeline.
func (s *Server) saveDocument(file io.Reader, filename string) (string, error) {
	dir := filepath.Join(s.cfg.DataDir, "documents")
	if err := util.EnsureDir(dir); err != nil {
		return "", err
	}
	path := util.SafeJoin(dir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	defer dst.Close()
	n, err := io.Copy(dst, file)
	if err != nil {
		return "", fmt.Errorf("write document file: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("the uploaded file is empty")
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DC-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "model provider unavailable"), strings.Contains(raw, "embedding provider unavailable"):
			return apiError{
				Code:    "DC-ANS-5020",
				Message: "Model provider unavailable. Retry shortly.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "DC-DB-5002",
				Message: "Storage backend is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DC-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DC-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DC-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "DC-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "DC-ANS-5020"
		msg = "Model provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "question and collection_name are required"):
			msg = "Both question and collection_name are required."
		case strings.Contains(raw, "collection_name is required"):
			msg = "collection_name is required."
		case strings.Contains(raw, "document file is required"):
			msg = "A document file is required."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "no bot configured"):
			msg = "No bot is configured under that username."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
