package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExpressionRuleConfig is one entry of the expression rules file
type ExpressionRuleConfig struct {
	Name       string `yaml:"name"`
	Priority   int    `yaml:"priority"`
	Expression string `yaml:"expression"`
	Verdict    string `yaml:"verdict"`
	Details    string `yaml:"details"`
}

// ExpressionRulesFile is the top-level structure of the expression rules file:
//
//	rules:
//	  - name: weekend_blackout
//	    priority: 10
//	    expression: "weekday >= 5"
//	    verdict: paused
//	    details: "campaigns do not run on weekends"
type ExpressionRulesFile struct {
	Rules []ExpressionRuleConfig `yaml:"rules"`
}

// LoadExpressionRules reads and compiles the expression rules from a YAML file
func LoadExpressionRules(path string) ([]*ExpressionRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read expression rules file: %w", err)
	}
	return ParseExpressionRules(data)
}

// ParseExpressionRules compiles expression rules from YAML content
func ParseExpressionRules(data []byte) ([]*ExpressionRule, error) {
	var file ExpressionRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse expression rules: %v", ErrInvalidConfiguration, err)
	}

	env, err := NewExpressionEnv()
	if err != nil {
		return nil, err
	}

	compiled := make([]*ExpressionRule, 0, len(file.Rules))
	for i, cfg := range file.Rules {
		verdict, err := ParseStatus(cfg.Verdict)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%q): %v", ErrInvalidConfiguration, i, cfg.Name, err)
		}

		rule, err := NewExpressionRule(env, cfg.Name, cfg.Priority, cfg.Expression, verdict, cfg.Details)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rule)
	}

	return compiled, nil
}
