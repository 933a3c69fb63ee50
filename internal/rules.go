package internal

import (
	"fmt"
	"log"

	"github.com/Knetic/govaluate"
)

// Rule routes stored events to a topic when its expression holds.
// Dotted payload fields must be bracketed: [payload.repository.full_name] == "org/repo".
type Rule struct {
	When    string   `yaml:"when"`
	Emit    string   `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is a topic selected by a rule, with the drivers it is restricted to.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

// RulesConfig configures a RuleEngine.
type RulesConfig struct {
	Rules []Rule
	// Strict reports expressions that reference absent fields instead of
	// treating those fields as null.
	Strict bool
	Logger *log.Logger
}

type compiledRule struct {
	when    string
	emit    string
	drivers []string
	expr    *govaluate.EvaluableExpression
}

// RuleEngine evaluates compiled rules against flat parameter maps.
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		expr, err := govaluate.NewEvaluableExpression(rule.When)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
		})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Len returns the number of compiled rules.
func (r *RuleEngine) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Evaluate returns the matches of every rule whose expression is true for params.
func (r *RuleEngine) Evaluate(params map[string]interface{}) []RuleMatch {
	if r.Len() == 0 {
		return nil
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		result, err := rule.expr.Evaluate(r.parameters(rule.expr, params))
		if err != nil {
			if r.strict {
				r.logger.Printf("rule %q eval failed: %v", rule.when, err)
			}
			continue
		}
		if ok, _ := result.(bool); ok {
			matches = append(matches, RuleMatch{Topic: rule.emit, Drivers: rule.drivers})
		}
	}
	return matches
}

func (r *RuleEngine) parameters(expr *govaluate.EvaluableExpression, params map[string]interface{}) map[string]interface{} {
	if r.strict {
		return params
	}
	var filled map[string]interface{}
	for _, name := range expr.Vars() {
		if _, ok := params[name]; ok {
			continue
		}
		if filled == nil {
			filled = make(map[string]interface{}, len(params)+1)
			for key, value := range params {
				filled[key] = value
			}
		}
		filled[name] = nil
	}
	if filled == nil {
		return params
	}
	return filled
}
