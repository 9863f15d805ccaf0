package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/personas"
)

var personaColors = map[personas.ID]func(format string, a ...interface{}) string{
	personas.Analytical: color.BlueString,
	personas.Creative:   color.MagentaString,
	personas.Pragmatic:  color.YellowString,
}

func printUtterance(out io.Writer, u discussion.Utterance) {
	switch u.Speaker.Role {
	case discussion.RoleSystem:
		fmt.Fprintf(out, "\n%s\n\n", color.HiBlackString("-- %s --", u.Text))
	case discussion.RoleHuman:
		fmt.Fprintf(out, "%s %s\n\n", color.GreenString("%s:", u.Speaker.Name), u.Text)
	default:
		paint := personaColors[u.Speaker.PersonaID]
		if paint == nil {
			paint = color.CyanString
		}
		fmt.Fprintf(out, "%s %s\n\n", paint("%s:", u.Speaker.Name), u.Text)
	}
}

func printReport(out io.Writer, r assessment.Report) {
	fmt.Fprintln(out, color.CyanString("\nAssessment"))
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "Overall: %.1f / 10 (%d%%)\n\n", r.OverallDisplay(), r.OverallPercent())
	for _, d := range r.Dimensions() {
		fmt.Fprintf(out, "%s %.1f\n", color.New(color.Bold).Sprint(strings.ToUpper(d.Name[:1])+d.Name[1:]+":"), d.Score)
		for _, s := range d.Strengths {
			fmt.Fprintf(out, "  %s %s\n", color.GreenString("+"), s)
		}
		for _, a := range d.AreasForImprovement {
			fmt.Fprintf(out, "  %s %s\n", color.RedString("-"), a)
		}
		if d.Tip != "" {
			fmt.Fprintf(out, "  %s %s\n", color.HiBlackString("tip:"), d.Tip)
		}
		fmt.Fprintln(out)
	}
}
