package agent

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
)

// FlowName is the registered name of the answer flow in genkit.
const FlowName = "docent/answer"

// Flow aliases the answer flow type for callers that serve it over
// genkit tooling.
type Flow = core.Flow[Request, Response, struct{}]

// genkit.DefineFlow panics on re-registration, so the flow is a
// package-level singleton.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the answer flow singleton, defining it on first
// call. Later calls return the existing flow and ignore the arguments.
func NewFlow(g *genkit.Genkit, a *Agent) *Flow {
	flowOnce.Do(func() {
		flow = genkit.DefineFlow(g, FlowName,
			func(ctx context.Context, req Request) (Response, error) {
				return a.Answer(ctx, req)
			})
	})
	return flow
}

// ResetFlowForTesting clears the flow singleton so tests can define it
// against fresh dependencies. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}
