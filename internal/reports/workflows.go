package reports

import (
	"fmt"
	"strings"
)

// Workflow kinds.
const (
	WorkflowCompanyProfile       = "company_profile"
	WorkflowDueDiligence         = "due_diligence"
	WorkflowCompetitiveLandscape = "competitive_landscape"
)

// Depth preferences and their token ceilings.
const (
	DepthBrief    = "brief"
	DepthStandard = "standard"
	DepthDetailed = "detailed"
)

var tokenBudgets = map[string]int{
	DepthBrief:    1024,
	DepthStandard: 2048,
	DepthDetailed: 4096,
}

// workflowSections lists the valid sections per workflow in generation
// order. Later sections may reference earlier ones, so order is fixed.
var workflowSections = map[string][]string{
	WorkflowCompanyProfile: {
		"overview",
		"products_and_services",
		"market_position",
		"financials",
		"leadership",
		"recent_developments",
	},
	WorkflowDueDiligence: {
		"overview",
		"financials",
		"risk_assessment",
		"legal_and_compliance",
		"competitive_position",
		"outlook",
	},
	WorkflowCompetitiveLandscape: {
		"market_overview",
		"competitor_profiles",
		"comparative_analysis",
		"market_dynamics",
		"outlook",
	},
}

// workflowDefaults is the section list used when the caller selects none.
var workflowDefaults = map[string][]string{
	WorkflowCompanyProfile: {
		"overview",
		"products_and_services",
		"market_position",
		"financials",
		"recent_developments",
	},
	WorkflowDueDiligence: {
		"overview",
		"financials",
		"risk_assessment",
		"competitive_position",
		"outlook",
	},
	WorkflowCompetitiveLandscape: {
		"market_overview",
		"competitor_profiles",
		"comparative_analysis",
		"outlook",
	},
}

// ValidWorkflow reports whether kind names a known workflow.
func ValidWorkflow(kind string) bool {
	_, ok := workflowSections[kind]
	return ok
}

// TokenBudget returns the token ceiling for a depth, defaulting to standard.
func TokenBudget(depth string) int {
	if budget, ok := tokenBudgets[depth]; ok {
		return budget
	}
	return tokenBudgets[DepthStandard]
}

// NormalizeDepth maps an empty or unknown depth to standard.
func NormalizeDepth(depth string) string {
	depth = strings.TrimSpace(strings.ToLower(depth))
	if _, ok := tokenBudgets[depth]; ok {
		return depth
	}
	return DepthStandard
}

// ResolveSections returns the section list for a report in generation
// order. An empty selection yields the workflow default; an explicit
// selection must be a non-empty subset of the workflow's valid sections.
func ResolveSections(workflow string, selected []string) ([]string, error) {
	valid, ok := workflowSections[workflow]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", workflow)
	}
	if len(selected) == 0 {
		defaults := workflowDefaults[workflow]
		out := make([]string, len(defaults))
		copy(out, defaults)
		return out, nil
	}

	want := make(map[string]bool, len(selected))
	for _, section := range selected {
		section = strings.TrimSpace(strings.ToLower(section))
		if section == "" {
			continue
		}
		found := false
		for _, candidate := range valid {
			if candidate == section {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("section %q is not valid for workflow %q", section, workflow)
		}
		want[section] = true
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("no valid sections selected")
	}

	// Preserve canonical generation order, not request order.
	out := make([]string, 0, len(want))
	for _, section := range valid {
		if want[section] {
			out = append(out, section)
		}
	}
	return out, nil
}

// RequiredCompanies validates company arity for the workflow.
func RequiredCompanies(workflow string, companies []string) error {
	named := make([]string, 0, len(companies))
	for _, company := range companies {
		if strings.TrimSpace(company) != "" {
			named = append(named, company)
		}
	}
	switch workflow {
	case WorkflowCompanyProfile, WorkflowDueDiligence:
		if len(named) != 1 {
			return fmt.Errorf("workflow %q requires exactly one company", workflow)
		}
	case WorkflowCompetitiveLandscape:
		if len(named) < 1 {
			return fmt.Errorf("workflow %q requires at least one company", workflow)
		}
	default:
		return fmt.Errorf("unknown workflow %q", workflow)
	}
	return nil
}
