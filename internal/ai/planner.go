package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/crawler"
	"github.com/v0xg/pagepilot/internal/executor"
)

//go:embed schema.json
var planSchemaJSON string

var planSchema = mustLoadSchema(planSchemaJSON)

func mustLoadSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("ai: invalid plan schema: %v", err))
	}
	return s
}

// Planner turns a goal and an observation into a plan using a Model
type Planner struct {
	model  Model
	logger *zap.Logger
}

// NewPlanner creates a Planner backed by model
func NewPlanner(model Model, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{model: model, logger: logger.Named("planner")}
}

// Generate asks the model once for the next batch of actions.
// Every failure (prompt, model call, parse, schema) yields an empty Plan.
func (p *Planner) Generate(ctx context.Context, credential, goal string, obs *crawler.Observation) executor.Plan {
	prompt, err := buildPrompt(goal, obs)
	if err != nil {
		p.logger.Error("Could not build plan request", zap.Error(err))
		return executor.Plan{}
	}

	raw, err := p.model.Complete(ctx, credential, prompt)
	if err != nil {
		p.logger.Warn("LLM failed to generate a plan", zap.String("model", p.model.Name()), zap.Error(err))
		return executor.Plan{}
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		p.logger.Warn("LLM returned an invalid plan",
			zap.String("model", p.model.Name()),
			zap.Error(err),
			zap.String("response", crawler.Truncate(raw, 500)))
		return executor.Plan{}
	}

	p.logger.Info("Plan generated", zap.String("model", p.model.Name()), zap.Int("actions", plan.Len()))
	for i, a := range plan.Actions {
		p.logger.Debug("Planned action", zap.Int("step", i+1), zap.Stringer("action", a))
	}
	return plan
}

// ParsePlan validates a model response and decodes it into a Plan.
// The response must be a JSON object whose "plan" key holds the actions.
func ParsePlan(raw string) (executor.Plan, error) {
	result, err := planSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return executor.Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		sort.Strings(errs)
		return executor.Plan{}, fmt.Errorf("plan schema validation failed: %s", strings.Join(errs, "; "))
	}

	doc, err := decodeObject([]byte(raw), "plan")
	if err != nil {
		return executor.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(doc["plan"], &items); err != nil {
		return executor.Plan{}, fmt.Errorf("decode plan: %w", err)
	}

	actions := make([]executor.Action, 0, len(items))
	for i, item := range items {
		a, err := decodeAction(item)
		if err != nil {
			return executor.Plan{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}
	return executor.NewPlan(actions...), nil
}

func decodeAction(raw json.RawMessage) (executor.Action, error) {
	fields, err := decodeObject(raw, "action", "selector", "text")
	if err != nil {
		return executor.Action{}, err
	}
	var action, selector, text string
	for key, dst := range map[string]*string{"action": &action, "selector": &selector, "text": &text} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return executor.Action{}, fmt.Errorf("field %q: %w", key, err)
		}
	}

	kind, err := executor.ParseKind(action)
	if err != nil {
		return executor.Action{}, err
	}
	switch kind {
	case executor.KindType:
		return executor.Type(selector, text), nil
	case executor.KindClick:
		return executor.Click(selector), nil
	case executor.KindClickText:
		return executor.ClickText(text), nil
	default:
		return executor.End(), nil
	}
}

// decodeObject decodes a JSON object keeping keys exactly as written. A key
// that differs from one of known only by case is an error.
func decodeObject(raw []byte, known ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for key := range fields {
		for _, k := range known {
			if key != k && strings.EqualFold(key, k) {
				return nil, fmt.Errorf("ambiguous key %q shadows %q", key, k)
			}
		}
	}
	return fields, nil
}
