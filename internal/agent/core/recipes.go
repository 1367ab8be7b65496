package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/llm"
)

// ConversationTurn is one prior exchange in a multi-turn chat.
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// QuestionnaireAnswers is the planning questionnaire answer set.
type QuestionnaireAnswers struct {
	Topic           string `json:"topic" validate:"required"`
	Goal            string `json:"goal" validate:"required"`
	Audience        string `json:"audience"`
	Timeline        string `json:"timeline"`
	Resources       string `json:"resources"`
	Constraint      string `json:"constraint"`
	SuccessCriteria string `json:"successCriteria"`
	ProcessStage    string `json:"processStage"`
	ExistingWork    string `json:"existingWork"`
}

// FollowUpQuestion is one clarifying question produced by the questions recipe.
type FollowUpQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Why      string `json:"why"`
	Source   string `json:"source"`
}

// FollowUpResult is the questions recipe's structured output.
type FollowUpResult struct {
	NeedsFollowUp bool               `json:"needsFollowUp"`
	Questions     []FollowUpQuestion `json:"questions"`
}

// Recipes binds the loop engine to the four agent behaviors.
type Recipes struct {
	Runner  *Runner
	Routing config.LLMRoutingConfig
	Caps    config.RecipesConfig
}

// Chat resolves a conversational answer over the knowledge base. The caller
// streams the final completion from the returned result.
func (r *Recipes) Chat(ctx context.Context, message string, conversation []ConversationTurn) (RunResult, error) {
	history := make([]llm.Message, 0, len(conversation))
	for _, turn := range conversation {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return r.Runner.Resolve(ctx, RunSpec{
		Recipe:        "chat",
		Model:         r.Routing.ModelFor("chat"),
		SystemPrompt:  chatSystemPrompt,
		History:       history,
		UserMessage:   message,
		MaxIterations: r.Caps.ChatMaxIterations,
		Temperature:   0.4,
		TokenBudget:   r.Caps.EvidenceTokenBudget,
	})
}

// Plan resolves an engagement plan for a questionnaire answer set.
func (r *Recipes) Plan(ctx context.Context, answers QuestionnaireAnswers, followUpAnswers map[string]string) (RunResult, error) {
	return r.Runner.Resolve(ctx, RunSpec{
		Recipe:        "plan",
		Model:         r.Routing.ModelFor("plan"),
		SystemPrompt:  planSystemPrompt,
		UserMessage:   formatPlanRequest(answers, followUpAnswers),
		MaxIterations: r.Caps.PlanMaxIterations,
		Temperature:   0.5,
		TokenBudget:   r.Caps.EvidenceTokenBudget,
	})
}

// Questions reviews questionnaire answers for ambiguity and returns the
// structured follow-up decision. Malformed model output degrades to the safe
// default (no follow-ups) rather than an error.
func (r *Recipes) Questions(ctx context.Context, answers QuestionnaireAnswers) (FollowUpResult, error) {
	result, err := r.Runner.RunToCompletion(ctx, RunSpec{
		Recipe:        "questions",
		Model:         r.Routing.ModelFor("questions"),
		SystemPrompt:  questionsSystemPrompt,
		UserMessage:   formatQuestionnaire(answers, nil),
		MaxIterations: r.Caps.QuestionsMaxIterations,
		Temperature:   0,
		JSONResponse:  true,
		TokenBudget:   r.Caps.EvidenceTokenBudget,
	})
	if err != nil {
		return FollowUpResult{Questions: []FollowUpQuestion{}}, err
	}
	return r.parseFollowUp(result.Content), nil
}

// Adapt resolves a case-study adaptation for the user's situation.
func (r *Recipes) Adapt(ctx context.Context, caseStudy, userContext, constraints string) (RunResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference case study: %s\n\n", caseStudy)
	fmt.Fprintf(&b, "My situation:\n%s\n", userContext)
	if constraints != "" {
		fmt.Fprintf(&b, "\nMy constraints:\n%s\n", constraints)
	}
	return r.Runner.Resolve(ctx, RunSpec{
		Recipe:        "adapt",
		Model:         r.Routing.ModelFor("adapt"),
		SystemPrompt:  adaptSystemPrompt,
		UserMessage:   b.String(),
		MaxIterations: r.Caps.AdaptMaxIterations,
		Temperature:   0.5,
		TokenBudget:   r.Caps.EvidenceTokenBudget,
	})
}

func (r *Recipes) parseFollowUp(content string) FollowUpResult {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out FollowUpResult
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		r.Runner.Logger.Printf("follow-up output did not parse, using safe default: %v", err)
		return FollowUpResult{Questions: []FollowUpQuestion{}}
	}
	if len(out.Questions) > 4 {
		out.Questions = out.Questions[:4]
	}
	if out.Questions == nil {
		out.Questions = []FollowUpQuestion{}
	}
	if len(out.Questions) == 0 {
		out.NeedsFollowUp = false
	}
	return out
}

func formatPlanRequest(answers QuestionnaireAnswers, followUpAnswers map[string]string) string {
	return formatQuestionnaire(answers, followUpAnswers)
}

func formatQuestionnaire(answers QuestionnaireAnswers, followUpAnswers map[string]string) string {
	var b strings.Builder
	b.WriteString("Questionnaire answers:\n")
	writeField(&b, "Topic", answers.Topic)
	writeField(&b, "Goal", answers.Goal)
	writeField(&b, "Audience", answers.Audience)
	writeField(&b, "Timeline", answers.Timeline)
	writeField(&b, "Resources", answers.Resources)
	writeField(&b, "Main constraint", answers.Constraint)
	writeField(&b, "Success criteria", answers.SuccessCriteria)
	writeField(&b, "Process stage", answers.ProcessStage)
	writeField(&b, "Existing work", answers.ExistingWork)

	if len(followUpAnswers) > 0 {
		b.WriteString("\nFollow-up answers:\n")
		ids := make([]string, 0, len(followUpAnswers))
		for id := range followUpAnswers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, followUpAnswers[id])
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
