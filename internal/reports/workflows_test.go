package reports

import (
	"testing"
)

func TestResolveSectionsDefaults(t *testing.T) {
	sections, err := ResolveSections(WorkflowCompanyProfile, nil)
	if err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if len(sections) == 0 {
		t.Fatal("default section list must not be empty")
	}
	valid := workflowSections[WorkflowCompanyProfile]
	for _, section := range sections {
		found := false
		for _, candidate := range valid {
			if candidate == section {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("default section %q not in workflow catalog", section)
		}
	}
}

func TestResolveSectionsExplicitSubsetKeepsCanonicalOrder(t *testing.T) {
	sections, err := ResolveSections(WorkflowDueDiligence, []string{"outlook", "overview", "financials"})
	if err != nil {
		t.Fatalf("resolve subset: %v", err)
	}
	want := []string{"overview", "financials", "outlook"}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	for i := range want {
		if sections[i] != want[i] {
			t.Errorf("sections[%d] = %q, want %q", i, sections[i], want[i])
		}
	}
}

func TestResolveSectionsRejectsInvalidKey(t *testing.T) {
	if _, err := ResolveSections(WorkflowCompanyProfile, []string{"overview", "risk_assessment"}); err == nil {
		t.Error("expected error for section from another workflow")
	}
	if _, err := ResolveSections("made_up", nil); err == nil {
		t.Error("expected error for unknown workflow")
	}
	if _, err := ResolveSections(WorkflowCompanyProfile, []string{"  "}); err == nil {
		t.Error("expected error when selection trims to nothing")
	}
}

func TestTokenBudgets(t *testing.T) {
	tests := []struct {
		depth string
		want  int
	}{
		{DepthBrief, 1024},
		{DepthStandard, 2048},
		{DepthDetailed, 4096},
		{"unknown", 2048},
	}
	for _, tt := range tests {
		if got := TokenBudget(tt.depth); got != tt.want {
			t.Errorf("TokenBudget(%q) = %d, want %d", tt.depth, got, tt.want)
		}
	}
}

func TestRequiredCompanies(t *testing.T) {
	if err := RequiredCompanies(WorkflowCompanyProfile, []string{"Acme"}); err != nil {
		t.Errorf("single company should be valid: %v", err)
	}
	if err := RequiredCompanies(WorkflowCompanyProfile, []string{"Acme", "Globex"}); err == nil {
		t.Error("company_profile must reject two companies")
	}
	if err := RequiredCompanies(WorkflowDueDiligence, nil); err == nil {
		t.Error("due_diligence must reject zero companies")
	}
	if err := RequiredCompanies(WorkflowCompetitiveLandscape, []string{"Acme", "Globex", "Initech"}); err != nil {
		t.Errorf("competitive_landscape accepts several companies: %v", err)
	}
	if err := RequiredCompanies(WorkflowCompetitiveLandscape, []string{" "}); err == nil {
		t.Error("competitive_landscape must reject blank-only companies")
	}
}
