package executor

import "fmt"

// Kind is the tag of a browser action
type Kind string

const (
	KindType      Kind = "type"       // fill a field located by selector
	KindClick     Kind = "click"      // click an element located by selector
	KindClickText Kind = "click_text" // click an element located by visible text
	KindEnd       Kind = "end"        // goal reached
)

// Kinds lists every tag a plan may contain, in prompt order
var Kinds = []Kind{KindType, KindClick, KindClickText, KindEnd}

// ParseKind maps a raw tag onto a known Kind
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindType, KindClick, KindClickText, KindEnd:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("unknown action: %q", raw)
	}
}

// Action represents a single browser automation action
type Action struct {
	Kind     Kind   `json:"action"`             // type, click, click_text, end
	Selector string `json:"selector,omitempty"` // CSS selector (type, click)
	Text     string `json:"text,omitempty"`     // text to type, or visible text to click
}

// Type builds a type action
func Type(selector, text string) Action {
	return Action{Kind: KindType, Selector: selector, Text: text}
}

// Click builds a click action
func Click(selector string) Action {
	return Action{Kind: KindClick, Selector: selector}
}

// ClickText builds a click-by-visible-text action
func ClickText(text string) Action {
	return Action{Kind: KindClickText, Text: text}
}

// End builds the goal-completion action
func End() Action {
	return Action{Kind: KindEnd}
}

// String renders the action for logs
func (a Action) String() string {
	switch a.Kind {
	case KindType:
		return fmt.Sprintf("type %s (text: %q)", a.Selector, a.Text)
	case KindClick:
		return fmt.Sprintf("click %s", a.Selector)
	case KindClickText:
		return fmt.Sprintf("click_text %q", a.Text)
	case KindEnd:
		return "end"
	default:
		return fmt.Sprintf("%s (unknown)", a.Kind)
	}
}

// Plan is the ordered batch of actions produced for one round
type Plan struct {
	Actions []Action `json:"plan"`
}

// NewPlan wraps actions in a Plan
func NewPlan(actions ...Action) Plan {
	return Plan{Actions: actions}
}

// Empty reports whether the plan has no usable actions
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Len returns the number of actions
func (p Plan) Len() int {
	return len(p.Actions)
}

// Outcome is the result of executing one plan
type Outcome int

const (
	// OutcomeFailed means an action errored or the plan was empty.
	OutcomeFailed Outcome = iota
	// OutcomeCompleted means an end action was reached.
	OutcomeCompleted
	// OutcomeExhausted means every action ran without reaching end.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "failed"
	}
}
