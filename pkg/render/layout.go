package render

import (
	"fmt"
	"strings"

	"github.com/moncoffretelec/coffret/pkg/intake"
)

// Fixed document text, in French like the wizard.
const (
	Title        = "Récapitulatif - MonCoffretElec"
	Bullet       = "• "
	PlansNone    = "Non demandé"
	FooterLine1  = "MonCoffretElec - Document généré automatiquement"
	FooterLine2  = "Établi par Electrical Designer"
	LabelAddress = "Adresse"
	LabelTension = "Tension"
	LabelPlans   = "Plans"
	LabelRooms   = "Pièces"
	LabelDevices = "Appareils"
	LabelNotes   = "Notes"
	LabelEmail   = "Email du client"
)

// Section is one labeled block of the summary body. Wrap marks a free-text
// paragraph that is constrained to the notes width.
type Section struct {
	Label string
	Lines []string
	Wrap  bool
}

// Layout is the complete text of a summary document, independent of how it
// is drawn.
type Layout struct {
	Title    string
	Sections []Section
	Footer   []string
}

// BuildLayout maps an intake record to the summary text. It never fails:
// every absent or empty field becomes intake.Placeholder.
func BuildLayout(rec intake.Record) Layout {
	return Layout{
		Title: Title,
		Sections: []Section{
			{Label: LabelAddress, Lines: []string{intake.Text(rec.Address)}},
			{Label: LabelTension, Lines: []string{intake.Text(rec.Tension)}},
			{Label: LabelPlans, Lines: []string{plansLine(rec)}},
			{Label: LabelRooms, Lines: bulletLines(rec.Rooms)},
			{Label: LabelDevices, Lines: bulletLines(rec.Appliances)},
			{Label: LabelNotes, Lines: []string{intake.Text(rec.Notes)}, Wrap: true},
			{Label: LabelEmail, Lines: []string{emailLine(rec)}},
		},
		Footer: []string{FooterLine1, FooterLine2},
	}
}

// Section returns the section with the given label.
func (l Layout) Section(label string) (Section, bool) {
	for _, s := range l.Sections {
		if s.Label == label {
			return s, true
		}
	}
	return Section{}, false
}

// Text flattens the layout to one line per drawn text item.
func (l Layout) Text() string {
	var b strings.Builder
	b.WriteString(l.Title)
	b.WriteByte('\n')
	for _, s := range l.Sections {
		b.WriteString(s.Label)
		b.WriteByte('\n')
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	for _, f := range l.Footer {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return b.String()
}

// plansLine depends only on the tri-state flag; the file list is not
// consulted unless plans were requested.
func plansLine(rec intake.Record) string {
	if !rec.PlansRequested() {
		return PlansNone
	}
	return fmt.Sprintf("%d fichier(s)", rec.FileCount())
}

func bulletLines(values []string) []string {
	items := intake.Items(values)
	if len(items) == 0 {
		return []string{intake.Placeholder}
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = Bullet + item
	}
	return lines
}

func emailLine(rec intake.Record) string {
	email := rec.ClientEmail()
	return intake.Text(&email)
}
