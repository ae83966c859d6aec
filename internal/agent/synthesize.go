package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/koopa0/docent/internal/knowledge"
	"github.com/koopa0/docent/internal/session"
)

const (
	// passageContextLimit caps how much of one passage enters the prompt.
	passageContextLimit = 1500

	// excerptLimit caps the verbatim citation excerpt.
	excerptLimit = 200
)

const answerSystemPrompt = `You answer questions about a corpus of legal and policy documents.

Rules:
- Ground every substantive claim in the numbered source passages when they are provided. Refer to them as [1], [2], and so on.
- If the passages do not cover the question, say so plainly instead of guessing.
- When no passages are provided, answer only from the conversation so far and say that you are not citing documents.
- Be precise with figures, thresholds, and dates; quote them exactly as the sources state them.`

// Canned responses for the fast paths. Fixed text keeps the social
// path off the provider entirely and makes no-evidence turns honest by
// construction.
const (
	greetingResponse = "Hello! Ask me anything about the document collection and I'll answer with cited sources."

	thanksResponse = "You're welcome! Happy to help with more questions about the documents."

	noEvidenceResponse = "I couldn't find any sufficiently relevant passage in the document collection for that question, so I won't guess. Try rephrasing, or ask about a topic the collection covers."
)

// socialResponse picks the canned reply for a greeting or thanks.
func socialResponse(message string) string {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "thank") || strings.Contains(lower, "appreciate") {
		return thanksResponse
	}
	return greetingResponse
}

// buildEvidenceBlock renders retrieved passages as a numbered context
// block for the prompt. Passage text is truncated, never paraphrased.
func buildEvidenceBlock(results []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Source passages:\n\n")
	for i, r := range results {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(r.Source)
		b.WriteString(", page ")
		b.WriteString(strconv.Itoa(r.Page))
		b.WriteString(":\n")
		b.WriteString(truncateRunes(r.Content, passageContextLimit))
		b.WriteString("\n\n")
	}
	return b.String()
}

// citationsFor derives the citation list from the passages that were
// actually supplied to the generator. There is no other way a citation
// comes to exist.
func citationsFor(results []knowledge.Result) []session.Source {
	if len(results) == 0 {
		return nil
	}
	sources := make([]session.Source, len(results))
	for i, r := range results {
		sources[i] = session.Source{
			Name:       r.Source,
			Page:       r.Page,
			Excerpt:    truncateRunes(r.Content, excerptLimit),
			Similarity: r.Similarity,
		}
	}
	return sources
}

// historyMessages converts stored history to provider messages.
func historyMessages(history []session.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case session.RoleModel:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}
	return msgs
}

// synthesize produces the answer text for one turn. results may be
// empty (memory-only turn). Any provider failure, including a deadline
// hit, is fatal for the turn and wrapped in ErrGeneration.
func (a *Agent) synthesize(ctx context.Context, message string, history []session.Message, results []knowledge.Result) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.generateTimeout)
	defer cancel()

	prompt := message
	if len(results) > 0 {
		prompt = buildEvidenceBlock(results) + "Question: " + message
	}

	messages := historyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(prompt)))

	if err := a.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	resp, err := a.generateWithRetry(ctx, []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(answerSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     &a.temperature,
			TopP:            &a.topP,
			MaxOutputTokens: a.maxTokens,
		}),
	})
	if err != nil {
		a.breaker.Failure()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: deadline exceeded after %s: %w", ErrGeneration, a.generateTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	a.breaker.Success()

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		// An empty answer is indistinguishable from a truncated one;
		// treat it as a provider failure rather than persist garbage.
		return "", fmt.Errorf("%w: model returned empty response", ErrGeneration)
	}
	return answer, nil
}

// truncateRunes shortens s to at most n runes, marking the cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
