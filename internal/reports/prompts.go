package reports

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a senior account intelligence analyst. You write
precise, well-structured business research sections in plain prose with short
paragraphs. You never fabricate exact figures; when data is uncertain you say
so. You write only the requested section, with no preamble or closing note.`

var workflowFraming = map[string]string{
	WorkflowCompanyProfile:       "a company profile report",
	WorkflowDueDiligence:         "a due diligence report",
	WorkflowCompetitiveLandscape: "a competitive landscape report",
}

var depthGuidance = map[string]string{
	DepthBrief:    "Keep it brief: the essentials only, a few short paragraphs.",
	DepthStandard: "Standard depth: cover the main points with supporting detail.",
	DepthDetailed: "Detailed: thorough coverage with nuance and context.",
}

// sectionPrompt builds the user prompt for one section. Earlier sections are
// passed back as context so later sections can reference them.
func sectionPrompt(report Report, section string, prior map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of %s.\n\n",
		strings.ReplaceAll(section, "_", " "), workflowFraming[report.Workflow])

	if len(report.Companies) == 1 {
		fmt.Fprintf(&b, "Subject company: %s\n", report.Companies[0])
	} else {
		fmt.Fprintf(&b, "Companies under analysis: %s\n", strings.Join(report.Companies, ", "))
	}
	fmt.Fprintf(&b, "%s\n", depthGuidance[NormalizeDepth(report.Depth)])

	if len(prior) > 0 {
		b.WriteString("\nSections already written (for context, do not repeat them):\n")
		for _, earlier := range report.Sections {
			text, ok := prior[earlier]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "\n## %s\n%s\n", earlier, truncateForContext(text))
		}
	}
	return b.String()
}

// truncateForContext bounds how much earlier-section text rides along in the
// prompt so context never dominates the token budget.
func truncateForContext(text string) string {
	const maxContext = 1200
	if len(text) <= maxContext {
		return text
	}
	return text[:maxContext] + "…"
}
