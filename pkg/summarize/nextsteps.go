package summarize

import (
	"strings"
)

// nextStepsHeading is the fixed section heading for the action-item
// checklist. The wording is part of the delivered document contract.
const nextStepsHeading = "### Prochaines étapes"

// Action is one extracted action item.
type Action struct {
	Title     string   `json:"title"`
	Assignees []string `json:"assignees"`
	DueDate   string   `json:"due_date"`
}

// ActionList is the schema-constrained output of the next-steps stage.
type ActionList struct {
	Actions []Action `json:"actions"`
}

// RenderNextSteps renders extracted actions as a markdown checklist
// under the fixed heading. An empty action list renders as an empty
// string so the section is simply omitted from the document.
func RenderNextSteps(list ActionList) string {
	if len(list.Actions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(nextStepsHeading)
	b.WriteString("\n")
	for _, a := range list.Actions {
		assignees := "-"
		if len(a.Assignees) > 0 {
			assignees = strings.Join(a.Assignees, ", ")
		}
		due := a.DueDate
		if due == "" {
			due = "-"
		}
		b.WriteString("\n- [ ] ")
		b.WriteString(a.Title)
		b.WriteString(" Assignée à : ")
		b.WriteString(assignees)
		b.WriteString(", Échéance : ")
		b.WriteString(due)
	}
	return b.String()
}
