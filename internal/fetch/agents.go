package fetch

import (
	"math/rand"
	"sync"
	"time"
)

// AgentPool hands out user-agent strings for outgoing requests.
type AgentPool struct {
	mu     sync.Mutex
	rand   *rand.Rand
	agents []string
}

var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

func NewAgentPool(agents ...string) *AgentPool {
	if len(agents) == 0 {
		agents = defaultAgents
	}
	return &AgentPool{
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		agents: agents,
	}
}

// Random returns a random user agent string.
func (p *AgentPool) Random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rand.Intn(len(p.agents))]
}
