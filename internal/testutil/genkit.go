package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// SetupGenkit initializes a plugin-free Genkit instance for tests that
// register mock models and embedders.
func SetupGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()
	return genkit.Init(context.Background())
}

// GoogleAISetup contains the resources for tests that hit the live
// Google AI API.
type GoogleAISetup struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
}

// SetupGoogleAI creates a live Google AI embedder for integration
// tests. Skips the test when GEMINI_API_KEY is not set.
func SetupGoogleAI(t *testing.T, embedderModel string) *GoogleAISetup {
	t.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring live embedder")
	}

	g := genkit.Init(context.Background(),
		genkit.WithPlugins(&googlegenai.GoogleAI{}))

	return &GoogleAISetup{
		Genkit:   g,
		Embedder: googlegenai.GoogleAIEmbedder(g, embedderModel),
	}
}
