package agents

import (
	"fmt"

	"github.com/flitsinc/agent-sessions/internal/tools"
)

// Agent is one node in the handoff graph. Handoffs lists the names of
// agents this one may transfer control to; the edges are plain names, not
// object references, so cyclic graphs carry no ownership cycles.
type Agent struct {
	Name         string
	Instructions string
	Tools        []*tools.Tool
	Handoffs     []string
}

// Graph holds every agent by name plus the entry agent new conversations
// start from. Built once at startup and read-only afterwards.
type Graph struct {
	entry  string
	agents map[string]*Agent
}

func NewGraph(entry string, list ...*Agent) (*Graph, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	byName := make(map[string]*Agent, len(list))
	for _, a := range list {
		if a == nil || a.Name == "" {
			return nil, fmt.Errorf("agent name is required")
		}
		if _, dup := byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate agent %s", a.Name)
		}
		byName[a.Name] = a
	}
	for _, a := range list {
		for _, target := range a.Handoffs {
			if _, ok := byName[target]; !ok {
				return nil, fmt.Errorf("agent %s hands off to unknown agent %s", a.Name, target)
			}
		}
	}
	if _, ok := byName[entry]; !ok {
		return nil, fmt.Errorf("entry agent %s is not in the graph", entry)
	}
	return &Graph{entry: entry, agents: byName}, nil
}

func (g *Graph) Entry() *Agent {
	return g.agents[g.entry]
}

func (g *Graph) Get(name string) (*Agent, bool) {
	a, ok := g.agents[name]
	return a, ok
}

// Default builds the stock two-agent graph: a general agent that can look
// up weather and hand off to a mail agent that reads and sends email.
func Default(registry *tools.Registry) (*Graph, error) {
	general, err := registry.Resolve([]string{"get-weather"})
	if err != nil {
		return nil, err
	}
	mail, err := registry.Resolve([]string{"get-mails", "send-mail"})
	if err != nil {
		return nil, err
	}
	return NewGraph("general-agent",
		&Agent{
			Name:         "general-agent",
			Instructions: "Handle general requests like weather information",
			Tools:        general,
			Handoffs:     []string{"mail-agent"},
		},
		&Agent{
			Name:         "mail-agent",
			Instructions: "Manage emails - read inbox and send emails",
			Tools:        mail,
		},
	)
}
