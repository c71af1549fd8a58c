package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/conversation"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" || req.Content == "" {
		s.telemetry.RecordInvalidRequest()
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields: url, content")
	}

	result, err := s.orch.Analyze(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) {
			s.telemetry.RecordInvalidRequest()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Failed to analyze content",
			"details": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalyzeStream(c echo.Context) error {
	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" || req.Content == "" {
		s.telemetry.RecordInvalidRequest()
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields: url, content")
	}

	events, err := s.orch.AnalyzeStream(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Printf("marshal stream event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			// Client went away; drain so the producer can finish.
			for range events {
			}
			return nil
		}
		res.Flush()
	}
	return nil
}

func (s *Server) handleChat(c echo.Context) error {
	var req struct {
		ConversationID string `json:"conversation_id"`
		UserMessage    string `json:"user_message"`
		ResponseLength string `json:"response_length"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ConversationID == "" || req.UserMessage == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields: conversation_id, user_message")
	}

	reply, err := s.chat.Chat(c.Request().Context(), req.ConversationID, req.UserMessage, req.ResponseLength)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"assistant_message": reply})
}

func (s *Server) handleHistory(c echo.Context) error {
	ctx := c.Request().Context()
	limit := s.cfg.Analysis.HistoryLimit
	if limit <= 0 {
		limit = 50
	}
	articles, err := s.index.Recent(ctx, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total, err := s.index.Total(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"articles": articles,
		"total":    total,
	})
}

func (s *Server) handleConnections(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("urlHash")
	connections, err := s.index.Connections(ctx, key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total, err := s.index.Total(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connections":   connections,
		"totalArticles": total,
	})
}
