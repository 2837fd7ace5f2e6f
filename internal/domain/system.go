package domain

import (
	"context"
	"fmt"
	"time"
)

// ModelSpec identifies one sub-agent and the capabilities it may use.
type ModelSpec struct {
	ID             int    `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	KnowledgeBases []int  `json:"knowledge_bases" yaml:"knowledge_bases"`
	Tools          []int  `json:"tools" yaml:"tools"`
	IsSupervisor   bool   `json:"is_supervisor,omitempty" yaml:"is_supervisor,omitempty"`
}

// KnowledgeBase is a remote document fetched fresh on every query.
type KnowledgeBase struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	S3URL       string `json:"s3_url,omitempty" yaml:"s3_url,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// Source returns the URL content is fetched from; url wins over s3_url.
func (kb KnowledgeBase) Source() string {
	if kb.URL != "" {
		return kb.URL
	}
	return kb.S3URL
}

// SystemConfig is the immutable configuration of one deployed multi-agent system.
type SystemConfig struct {
	Mission        string          `json:"mission" yaml:"mission"`
	Models         []ModelSpec     `json:"models" yaml:"models"`
	KnowledgeBases []KnowledgeBase `json:"knowledge_bases" yaml:"knowledge_bases"`
	Tools          []Tool          `json:"tools" yaml:"tools"`
}

// CheckSections reports a configuration error when a required section is
// absent. Empty knowledge base and tool lists are allowed; an empty model
// list is not.
func (c *SystemConfig) CheckSections() error {
	switch {
	case c.Models == nil:
		return NewDomainError("SystemConfig", ErrConfiguration, "configuration must include 'models'")
	case c.KnowledgeBases == nil:
		return NewDomainError("SystemConfig", ErrConfiguration, "configuration must include 'knowledge_bases'")
	case c.Tools == nil:
		return NewDomainError("SystemConfig", ErrConfiguration, "configuration must include 'tools'")
	case len(c.Models) == 0:
		return NewDomainError("SystemConfig", ErrConfiguration, "configuration must include at least one model")
	}
	return nil
}

// Normalize assigns 1-based IDs to entries that lack one and classifies
// every tool. It is called once when a system is created or loaded.
func (c *SystemConfig) Normalize() {
	for i := range c.Models {
		if c.Models[i].ID == 0 {
			c.Models[i].ID = i + 1
		}
	}
	for i := range c.KnowledgeBases {
		if c.KnowledgeBases[i].ID == 0 {
			c.KnowledgeBases[i].ID = i + 1
		}
	}
	for i := range c.Tools {
		if c.Tools[i].ID == 0 {
			c.Tools[i].ID = i + 1
		}
		c.Tools[i].Kind = ClassifyTool(c.Tools[i].Name, c.Tools[i].APIURL)
	}
}

// Model returns the model with the given ID.
func (c *SystemConfig) Model(id int) (ModelSpec, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// KnowledgeBasesFor resolves a model's KB references. Dangling IDs are dropped.
func (c *SystemConfig) KnowledgeBasesFor(m ModelSpec) []KnowledgeBase {
	var out []KnowledgeBase
	for _, kb := range c.KnowledgeBases {
		if containsID(m.KnowledgeBases, kb.ID) {
			out = append(out, kb)
		}
	}
	return out
}

// ToolsFor resolves a model's tool references. Dangling IDs are dropped.
func (c *SystemConfig) ToolsFor(m ModelSpec) []Tool {
	var out []Tool
	for _, t := range c.Tools {
		if containsID(m.Tools, t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// Tool returns the tool with the given ID.
func (c *SystemConfig) Tool(id int) (Tool, bool) {
	for _, t := range c.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// Redacted returns a deep copy with tool credentials masked.
func (c *SystemConfig) Redacted() SystemConfig {
	out := SystemConfig{
		Mission:        c.Mission,
		Models:         make([]ModelSpec, len(c.Models)),
		KnowledgeBases: append([]KnowledgeBase(nil), c.KnowledgeBases...),
		Tools:          make([]Tool, len(c.Tools)),
	}
	for i, m := range c.Models {
		m.KnowledgeBases = append([]int(nil), m.KnowledgeBases...)
		m.Tools = append([]int(nil), m.Tools...)
		out.Models[i] = m
	}
	for i, t := range c.Tools {
		if t.APIKey != "" {
			t.APIKey = "***"
		}
		out.Tools[i] = t
	}
	return out
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// System is a stored configuration addressed by an opaque ID.
type System struct {
	ID        string       `json:"id"`
	Config    SystemConfig `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
}

// SystemStore persists systems by ID. Implementations must allow concurrent readers.
type SystemStore interface {
	Put(ctx context.Context, sys *System) error
	// Get returns ErrSystemNotFound when no system has the given ID.
	Get(ctx context.Context, id string) (*System, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// RoutingDecision is the Core Router's choice for one query.
type RoutingDecision struct {
	ModelID int    `json:"model_id"`
	Prompt  string `json:"prompt"`
}

func (d RoutingDecision) String() string {
	return fmt.Sprintf("model=%d prompt=%q", d.ModelID, d.Prompt)
}
