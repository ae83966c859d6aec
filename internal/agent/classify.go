package agent

import (
	"context"
	"strings"
	"unicode"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/koopa0/docent/internal/session"
)

// route is the classifier's verdict for one message.
type route int

const (
	// routeRetrieve answers with a standard-threshold document search.
	routeRetrieve route = iota
	// routeRetrieveStrict answers a fact-seeking policy question with
	// the strict threshold, so loosely related passages stay out.
	routeRetrieveStrict
	// routeMemory answers a follow-up from conversation history alone.
	routeMemory
	// routeSocial answers a greeting or thanks on the canned fast path.
	routeSocial
)

func (r route) String() string {
	switch r {
	case routeRetrieve:
		return "retrieve"
	case routeRetrieveStrict:
		return "retrieve_strict"
	case routeMemory:
		return "memory"
	case routeSocial:
		return "social"
	default:
		return "unknown"
	}
}

// socialKeywords mark greetings and pleasantries. A short message
// containing one of these never reaches the index or the classifier
// model.
var socialKeywords = []string{
	"hello", "hi", "hey",
	"good morning", "good afternoon", "good evening",
	"thank", "thanks", "appreciate",
}

// maxSocialWords bounds the fast path: a long message that happens to
// open with "hi" is still a real question.
const maxSocialWords = 6

// isSocial reports whether the message is a greeting or thanks.
// Keywords match whole words only, so "highest" never matches "hi".
func isSocial(message string) bool {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, message)

	words := strings.Fields(normalized)
	if len(words) == 0 || len(words) > maxSocialWords {
		return false
	}

	padded := " " + strings.Join(words, " ") + " "
	for _, kw := range socialKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}

// classifyHistoryWindow is how many trailing history messages the
// classifier model sees.
const classifyHistoryWindow = 3

const classifySystemPrompt = `You route questions for a document question-answering service over a corpus of legal and policy documents.

Given the conversation so far and the user's latest message, answer with exactly one word:

RETRIEVE_STRICT - the message asks for a specific fact, figure, threshold, deadline, or rule from the documents
RETRIEVE - the message asks about the documents in an open-ended or exploratory way
MEMORY - the message is a follow-up fully answerable from the conversation above, with no new document lookup needed

Answer with one word only.`

// classify decides the route for one message. The social fast path is
// keyword-based and never calls the model; everything else goes through
// a short, temperature-zero classification call. A failed or
// unparseable classification falls back to RETRIEVE: over-retrieving
// is recoverable, answering a policy question from nothing is not.
func (a *Agent) classify(ctx context.Context, message string, history []session.Message) route {
	if isSocial(message) {
		return routeSocial
	}

	ctx, cancel := context.WithTimeout(ctx, a.classifyTimeout)
	defer cancel()

	window := history
	if len(window) > classifyHistoryWindow {
		window = window[len(window)-classifyHistoryWindow:]
	}

	var b strings.Builder
	for _, m := range window {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("latest message: ")
	b.WriteString(message)

	temperature := float32(0)
	maxTokens := int32(8)
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(classifySystemPrompt),
		ai.WithPrompt(b.String()),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: maxTokens,
		}),
	)
	if err != nil {
		a.logger.Warn("classification failed, defaulting to retrieval", "error", err)
		return routeRetrieve
	}

	return a.parseRoute(resp.Text())
}

// parseRoute maps the model's one-word verdict to a route.
func (a *Agent) parseRoute(text string) route {
	verdict := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(verdict, "RETRIEVE_STRICT"):
		return routeRetrieveStrict
	case strings.HasPrefix(verdict, "RETRIEVE"):
		return routeRetrieve
	case strings.HasPrefix(verdict, "MEMORY"):
		return routeMemory
	default:
		a.logger.Warn("unparseable classification, defaulting to retrieval", "verdict", verdict)
		return routeRetrieve
	}
}
