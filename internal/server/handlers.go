package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/civicworks/coachtool/internal/agent/core"
	"github.com/civicworks/coachtool/internal/helpers"
	"github.com/civicworks/coachtool/internal/llm"
	"github.com/civicworks/coachtool/internal/store"
)

var serverTracer = otel.Tracer("coachtool/internal/server")

// ChatRequest is the chat endpoint payload.
type ChatRequest struct {
	Message      string                  `json:"message" validate:"required"`
	Conversation []core.ConversationTurn `json:"conversation" validate:"omitempty,dive"`
}

// PlanRequest is the plan endpoint payload.
type PlanRequest struct {
	UserContext     core.QuestionnaireAnswers `json:"userContext" validate:"required"`
	FollowUpAnswers map[string]string         `json:"followUpAnswers"`
}

// AdaptRequest is the case-study adaptation payload.
type AdaptRequest struct {
	CaseStudy   string `json:"caseStudy" validate:"required"`
	Context     string `json:"context" validate:"required"`
	Constraints string `json:"constraints"`
}

type sourcesEvent struct {
	Sources []core.SourceOutput `json:"sources"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.streamRecipe(c, "chat", 0.4, func(ctx context.Context) (core.RunResult, error) {
		return s.agent.Chat(ctx, req.Message, req.Conversation)
	})
}

func (s *Server) handlePlan(c echo.Context) error {
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.streamRecipe(c, "plan", 0.5, func(ctx context.Context) (core.RunResult, error) {
		return s.agent.Plan(ctx, req.UserContext, req.FollowUpAnswers)
	})
}

func (s *Server) handleAdapt(c echo.Context) error {
	var req AdaptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.streamRecipe(c, "adapt", 0.5, func(ctx context.Context) (core.RunResult, error) {
		return s.agent.Adapt(ctx, req.CaseStudy, req.Context, req.Constraints)
	})
}

// handleQuestions is the one non-streaming agent endpoint. A failed run
// degrades to the no-follow-ups default so the client always gets a usable
// decision.
func (s *Server) handleQuestions(c echo.Context) error {
	var answers core.QuestionnaireAnswers
	if err := c.Bind(&answers); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&answers); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req := c.Request()
	ctx, span := serverTracer.Start(req.Context(), "Server.questions")
	defer span.End()
	result, err := s.agent.Questions(ctx, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Printf("questions run failed, returning default: %v", err)
		return c.JSON(http.StatusOK, core.FollowUpResult{Questions: []core.FollowUpQuestion{}})
	}
	return c.JSON(http.StatusOK, result)
}

// handleListCaseStudies returns the case study library without full content.
func (s *Server) handleListCaseStudies(c echo.Context) error {
	studies, err := s.docs.ListCaseStudies(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if studies == nil {
		studies = []store.CaseStudyRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"caseStudies": studies})
}

func (s *Server) handleGetCaseStudy(c echo.Context) error {
	cs, err := s.docs.GetCaseStudy(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "case study not found")
	}
	return c.JSON(http.StatusOK, cs)
}

// handleReindex rebuilds the search index from the chunk store.
func (s *Server) handleReindex(c echo.Context) error {
	ctx := c.Request().Context()
	records, err := s.docs.AllChunks(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := s.reindex.Reset(records); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.logger.Printf("index rebuilt with %d chunks", len(records))
	return c.JSON(http.StatusOK, map[string]interface{}{"indexed": len(records)})
}

// streamRecipe resolves an agent run and streams the answer as SSE. Once the
// stream is open every failure is contained: the client gets an apologetic
// fragment and the terminal marker instead of a broken connection.
func (s *Server) streamRecipe(c echo.Context, recipe string, temperature float64, resolve func(ctx context.Context) (core.RunResult, error)) error {
	req := c.Request()
	ctx, span := serverTracer.Start(req.Context(), "Server."+recipe)
	defer span.End()
	span.SetAttributes(attribute.String("recipe", recipe))

	w, err := newSSEWriter(c)
	if err != nil {
		span.SetStatus(codes.Error, "streaming unsupported")
		return err
	}

	result, err := resolve(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Printf("%s run failed: %v", recipe, err)
		_ = w.event(contentEvent{Content: streamFailureMessage})
		return w.done()
	}

	finalText := result.Content
	if finalText != "" {
		// The model answered before exhausting its tool rounds; no second
		// completion call is needed.
		if err := w.event(contentEvent{Content: finalText}); err != nil {
			return err
		}
	} else {
		finalText, err = s.streamCompletion(ctx, recipe, temperature, result.Messages, w)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Printf("%s streaming completion failed: %v", recipe, err)
			_ = w.event(contentEvent{Content: streamFailureMessage})
			return w.done()
		}
	}

	if sources := s.sourcesFor(ctx, result.Messages, finalText); len(sources) > 0 {
		if err := w.event(sourcesEvent{Sources: sources}); err != nil {
			return err
		}
	}
	return w.done()
}

// streamCompletion makes the reserved final model call over the resolved
// history, forwarding each fragment to the stream. No tools are advertised
// here, which is what disables tool use; sending tool_choice without tools
// would be rejected by the API.
func (s *Server) streamCompletion(ctx context.Context, recipe string, temperature float64, messages []llm.Message, w *sseWriter) (string, error) {
	resp, err := s.provider.StreamChatCompletion(ctx, llm.ChatRequest{
		Model:       s.routing.ModelFor(recipe),
		Messages:    messages,
		Temperature: temperature,
	}, func(delta string) error {
		return w.event(contentEvent{Content: delta})
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// sourcesFor builds the citation list: deduplicated evidence from the run's
// tool messages, cross-checked against inline citations in the final text so
// cited documents pick up their source URLs.
func (s *Server) sourcesFor(ctx context.Context, messages []llm.Message, finalText string) []core.SourceOutput {
	sources := core.CollectSources(messages)
	docs, err := s.docs.ListDocuments(ctx)
	if err != nil {
		s.logger.Printf("listing documents for citation resolution: %v", err)
		return sources
	}
	known := make([]helpers.KnownSource, 0, len(docs))
	for _, d := range docs {
		known = append(known, helpers.KnownSource{Title: d.Name, URL: d.SourceURL})
	}
	for _, cit := range helpers.ExtractCitations(finalText) {
		src, ok := helpers.ResolveCitation(cit.Name, known)
		if !ok {
			continue
		}
		matched := false
		title := strings.ToLower(src.Title)
		for i := range sources {
			if strings.Contains(strings.ToLower(sources[i].Title), title) {
				if sources[i].SourceURL == "" {
					sources[i].SourceURL = src.URL
				}
				matched = true
			}
		}
		if !matched {
			sources = append(sources, core.SourceOutput{Title: src.Title, SourceURL: src.URL})
		}
	}
	return sources
}
