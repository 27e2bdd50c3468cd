package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models sovereign.yml.
type Config struct {
	Council struct {
		Advisors map[string]Advisor `yaml:"advisors"`
	} `yaml:"council"`
	Gatekeeper struct {
		MaxQuestions        int     `yaml:"max_questions"`
		RecentRepeatN       int     `yaml:"recent_repeat_n"`
		StableConfidenceMin float64 `yaml:"stable_confidence_min"`
	} `yaml:"gatekeeper"`
	Weighting struct {
		DefaultAuthority   float64 `yaml:"default_authority"`
		DominanceThreshold float64 `yaml:"dominance_threshold"`
	} `yaml:"weighting"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// Advisor is one configured council seat.
type Advisor struct {
	Title          string   `yaml:"title,omitempty"`
	Domains        []string `yaml:"domains"`
	BaseAuthority  float64  `yaml:"base_authority"`
	RequiredFields []string `yaml:"required_fields,omitempty"`
	Keywords       []string `yaml:"keywords,omitempty"`
	RiskSentinel   bool     `yaml:"risk_sentinel,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sov config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Council.Advisors) == 0 {
		return fmt.Errorf("config.council.advisors is required")
	}
	sentinels := 0
	for name, a := range c.Council.Advisors {
		if name == "" {
			return fmt.Errorf("config.council.advisors contains empty advisor name")
		}
		if len(a.Domains) == 0 {
			return fmt.Errorf("advisor %s has no domains", name)
		}
		for _, d := range a.Domains {
			if d == "" {
				return fmt.Errorf("advisor %s has empty domain", name)
			}
		}
		if a.BaseAuthority < 0 {
			return fmt.Errorf("advisor %s has negative base_authority", name)
		}
		if a.RiskSentinel {
			sentinels++
		}
	}
	if sentinels > 1 {
		return fmt.Errorf("config.council.advisors declares more than one risk_sentinel")
	}
	if c.Gatekeeper.MaxQuestions < 0 {
		return fmt.Errorf("config.gatekeeper.max_questions must be >= 0")
	}
	if c.Gatekeeper.RecentRepeatN < 0 {
		return fmt.Errorf("config.gatekeeper.recent_repeat_n must be >= 0")
	}
	if c.Weighting.DominanceThreshold < 0 {
		return fmt.Errorf("config.weighting.dominance_threshold must be >= 0")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// RiskSentinel returns the advisor name flagged as the veto-holding seat, or
// empty if none is configured.
func (c *Config) RiskSentinel() string {
	for name, a := range c.Council.Advisors {
		if a.RiskSentinel {
			return name
		}
	}
	return ""
}

// RequiredFieldsByAdvisor returns the per-advisor required-field lists the
// gatekeeper checks relevance against.
func (c *Config) RequiredFieldsByAdvisor() map[string][]string {
	out := make(map[string][]string, len(c.Council.Advisors))
	for name, a := range c.Council.Advisors {
		out[name] = a.RequiredFields
	}
	return out
}

// DomainsByAdvisor returns the per-advisor jurisdiction domains.
func (c *Config) DomainsByAdvisor() map[string][]string {
	out := make(map[string][]string, len(c.Council.Advisors))
	for name, a := range c.Council.Advisors {
		out[name] = a.Domains
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sovereign.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `council:
  advisors:
    risk:
      title: "Minister of Risk"
      domains: [risk, loss, exposure, survival]
      base_authority: 1.2
      risk_sentinel: true
      required_fields:
        - risk.max_loss_percent
        - risk.exposure
      keywords: [risk, loss, downside, ruin, hedge, exposure]
    truth:
      title: "Minister of Truth"
      domains: [truth, evidence, fact]
      base_authority: 1.1
      required_fields:
        - truth.evidence_quality
      keywords: [evidence, fact, data, verify, proof]
    power:
      title: "Minister of Power"
      domains: [power, leverage, position]
      base_authority: 1.1
      required_fields:
        - power.leverage
      keywords: [power, leverage, advantage, control, position]
    timing:
      title: "Minister of Timing"
      domains: [timing, speed, schedule]
      base_authority: 1.0
      required_fields:
        - timing.deadline
      keywords: [when, deadline, timing, window, urgency]
    legitimacy:
      title: "Minister of Legitimacy"
      domains: [legitimacy, ethics, reputation]
      base_authority: 1.0
      required_fields:
        - legitimacy.reputation_cost
      keywords: [ethics, reputation, legitimacy, trust, optics]

gatekeeper:
  max_questions: 3
  recent_repeat_n: 2
  stable_confidence_min: 0.6

weighting:
  default_authority: 0.5
  dominance_threshold: 1.0
`
