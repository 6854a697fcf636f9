package runtime

import "github.com/systaxiecuador/hive/pkg/domain"

type status int

const (
	statusSuccess status = iota
	statusFailure
	statusSuspend
)

// nodeOutcome is what an executor hands back to the scheduler: success
// with buffered outputs, a typed failure, or a suspension carrying the
// message to present to the human plus the in-progress transcript.
type nodeOutcome struct {
	status  status
	outputs map[string]any
	failure *domain.Failure

	// payload is the user-facing text of a suspension, or the final
	// assistant message of a successful LLM node.
	payload    string
	transcript []domain.Message

	tokens    int
	latencyMS int64
}

func success(outputs map[string]any) nodeOutcome {
	if outputs == nil {
		outputs = map[string]any{}
	}
	return nodeOutcome{status: statusSuccess, outputs: outputs}
}

func failed(f *domain.Failure) nodeOutcome {
	return nodeOutcome{status: statusFailure, failure: f}
}

func suspended(payload string, transcript []domain.Message) nodeOutcome {
	return nodeOutcome{status: statusSuspend, payload: payload, transcript: transcript}
}
