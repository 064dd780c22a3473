package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/v0xg/pagepilot/internal/crawler"
)

const promptTemplate = `You are an expert web automation AI. Your high-level goal is: "%s"
Your task is to analyze the page context and create a precise JSON plan to achieve the goal.

Here is the page context (accessibility tree and HTML):
` + "```json" + `
%s
` + "```" + `

--- YOUR STRICT REASONING PROCESS ---
1.  **Analyze the Goal vs. Current Page:** Look at your goal. Are you trying to log in, or are you already logged in and trying to log out? Base your plan ONLY on what you see on the page right now. Earlier steps are not remembered; decide from this page alone.
2.  **Find the Key Element:** Identify the most important element needed for the next step from the ` + "`accessibility_tree`" + `. For example, a 'textbox' named 'Username'.
3.  **Find its ID in the HTML:** Look in the ` + "`html_snippet`" + ` for that exact element and find its ` + "`id`" + ` attribute.
4.  **Create a PERFECT CSS Selector:**
    - If an ` + "`id`" + ` exists (e.g., ` + "`<input id=\"username\">`" + `), the selector MUST be ` + "`\"#username\"`" + `.
    - If no ` + "`id`" + ` exists, but the element has clear visible text (e.g., a "Log out" button), you MUST use the ` + "`click_text`" + ` action.
    - Never use a selector that does not appear in the page context.
5.  **Construct the Plan:** Create a JSON plan of actions for the CURRENT page.

--- VALID ACTIONS (Your Tools) ---
%s
Your response MUST be a valid JSON object with a single key "plan".
`

var actionGuide = []string{
	`- To type in a field with an ID: {"action": "type", "selector": "#the_id", "text": "text_to_type"}`,
	`- To click a button with an ID: {"action": "click", "selector": "#the_id"}`,
	`- To click an element by its visible text: {"action": "click_text", "text": "Visible text on the element"}`,
	`- When the entire goal is finished: {"action": "end"}`,
}

// buildPrompt renders the plan request for one round
func buildPrompt(goal string, obs *crawler.Observation) (string, error) {
	pageContext, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal observation: %w", err)
	}
	return fmt.Sprintf(promptTemplate, goal, pageContext, strings.Join(actionGuide, "\n")+"\n"), nil
}
