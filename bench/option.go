package bench

import (
	"time"

	"github.com/isucon/isucandar/agent"
)

type Option struct {
	TargetURL        string
	RequestTimeout   time.Duration
	InitialMusicians int
	SkipPrepare      bool
	PrepareOnly      bool
}

// NewAgent returns an agent with its own cookie jar. Redirects are not followed.
// Agents used during prepare get a longer timeout.
func (o Option) NewAgent(forPrepare bool) (*agent.Agent, error) {
	timeout := o.RequestTimeout
	if forPrepare {
		timeout = 10 * time.Second
	}
	return agent.NewAgent(
		agent.WithBaseURL(o.TargetURL),
		agent.WithTimeout(timeout),
		agent.WithDefaultTransport(),
		agent.WithNoCache(),
	)
}
