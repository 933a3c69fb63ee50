package internal

import "testing"

// TestRuleEngineEvaluate tests that the rule engine selects topics by record fields.
func TestRuleEngineEvaluate(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: `action == "merge"`, Emit: "events.merge"},
			{When: `action == "push" && to_branch == "main"`, Emit: "events.main"},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(map[string]interface{}{"action": "merge", "to_branch": "main"})
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "events.merge" {
		t.Fatalf("expected topic events.merge, got %q", matches[0].Topic)
	}
}

// TestRuleEngineBracketedPayloadField tests that flattened payload keys can be referenced.
func TestRuleEngineBracketedPayloadField(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `[payload.repository.full_name] == "org/repo"`, Emit: "events.org"}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	params := Flatten("payload", map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "org/repo"},
	})
	matches := engine.Evaluate(params)
	if len(matches) != 1 || matches[0].Topic != "events.org" {
		t.Fatalf("expected events.org match, got %v", matches)
	}
}

// TestRuleEngineMissingField tests that absent fields never match in either mode.
func TestRuleEngineMissingField(t *testing.T) {
	for _, strict := range []bool{false, true} {
		engine, err := NewRuleEngine(RulesConfig{
			Rules:  []Rule{{When: "missing == true", Emit: "never"}},
			Strict: strict,
		})
		if err != nil {
			t.Fatalf("new rule engine: %v", err)
		}
		if matches := engine.Evaluate(map[string]interface{}{"action": "push"}); len(matches) != 0 {
			t.Fatalf("strict=%v: expected no topics, got %d", strict, len(matches))
		}
	}
}

// TestRuleEngineAbsentFieldIsNull tests that non-strict mode evaluates absent fields as null.
func TestRuleEngineAbsentFieldIsNull(t *testing.T) {
	rules := []Rule{{When: `from_branch != "main"`, Emit: "events.direct"}}
	params := map[string]interface{}{"action": "push"}

	lenient, err := NewRuleEngine(RulesConfig{Rules: rules})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if matches := lenient.Evaluate(params); len(matches) != 1 {
		t.Fatalf("expected absent field to compare as null, got %d matches", len(matches))
	}

	strict, err := NewRuleEngine(RulesConfig{Rules: rules, Strict: true})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if matches := strict.Evaluate(params); len(matches) != 0 {
		t.Fatalf("expected strict mode to skip the rule, got %d matches", len(matches))
	}
}

// TestRuleEngineWithDrivers tests that matches carry the rule's drivers.
func TestRuleEngineWithDrivers(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{{When: `action == "pull_request"`, Emit: "events.pr", Drivers: []string{"amqp", "http"}}},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(map[string]interface{}{"action": "pull_request"})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(matches[0].Drivers) != 2 || matches[0].Drivers[0] != "amqp" || matches[0].Drivers[1] != "http" {
		t.Fatalf("unexpected drivers: %v", matches[0].Drivers)
	}
}

// TestRuleEngineInvalidExpression tests that compile errors are reported.
func TestRuleEngineInvalidExpression(t *testing.T) {
	if _, err := NewRuleEngine(RulesConfig{Rules: []Rule{{When: "action ==", Emit: "x"}}}); err == nil {
		t.Fatalf("expected compile error")
	}
}
