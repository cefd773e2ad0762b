package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/executor.txt
	executorRaw string

	//go:embed template/business_logic.txt
	businessLogicRaw string
)

// PlanPlaceholder is replaced with the plan text in the executor prompt.
const PlanPlaceholder = "{plan}"

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner       string
	Executor      string
	BusinessLogic string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Planner:       strings.TrimSpace(plannerRaw),
		Executor:      strings.TrimSpace(executorRaw),
		BusinessLogic: strings.TrimSpace(businessLogicRaw),
	}
}

func (p PromptSet) Validate() error {
	switch {
	case strings.TrimSpace(p.Planner) == "":
		return fmt.Errorf("%w: planner", contractx.ErrPromptMissing)
	case strings.TrimSpace(p.Executor) == "":
		return fmt.Errorf("%w: executor", contractx.ErrPromptMissing)
	case strings.TrimSpace(p.BusinessLogic) == "":
		return fmt.Errorf("%w: business logic", contractx.ErrPromptMissing)
	case !strings.Contains(p.Executor, PlanPlaceholder):
		return fmt.Errorf("%w: executor prompt has no %s placeholder", contractx.ErrPromptMissing, PlanPlaceholder)
	}
	return nil
}

// ExecutorPrompt embeds plan into the executor system prompt.
func (p PromptSet) ExecutorPrompt(plan string) string {
	return strings.ReplaceAll(p.Executor, PlanPlaceholder, strings.TrimSpace(plan))
}
