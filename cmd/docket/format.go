package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatImportText formats an import report as aligned columns followed by
// the failed records.
func formatImportText(w io.Writer, r CLIImportReport) {
	fmt.Fprintf(w, "Jurisdiction: %s\n\n", r.Jurisdiction)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCREATED\tUPDATED\tUNCHANGED\tFAILED")
	for _, t := range r.Types {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", t.Type, t.Created, t.Updated, t.Unchanged, t.Failed)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\n", r.Totals.Created, r.Totals.Updated, r.Totals.Unchanged, r.Totals.Failed)
	tw.Flush()

	if len(r.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures:")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s %s", f.Type, f.LocalID)
			if f.Key != "" {
				fmt.Fprintf(w, " (%s)", f.Key)
			}
			fmt.Fprintf(w, ": %s\n", f.Error)
		}
	}
}

// formatOrderText prints one entity type per line.
func formatOrderText(w io.Writer, order []string) {
	for i, t := range order {
		fmt.Fprintf(w, "%d. %s\n", i+1, t)
	}
}

func linked(id *string) string {
	if id == nil {
		return "-"
	}
	return *id
}

// formatBillText formats a bill and its children as readable text.
func formatBillText(w io.Writer, b CLIBill) {
	fmt.Fprintf(w, "%s (%s): %s\n", b.Identifier, b.LegislativeSession, b.Title)
	fmt.Fprintf(w, "ID: %s\n", b.ID)
	fmt.Fprintf(w, "From: %s\n", b.FromOrganizationID)
	if len(b.Classification) > 0 {
		fmt.Fprintf(w, "Classification: %s\n", strings.Join(b.Classification, ", "))
	}
	if len(b.Subject) > 0 {
		fmt.Fprintf(w, "Subject: %s\n", strings.Join(b.Subject, ", "))
	}
	for _, t := range b.OtherTitles {
		fmt.Fprintf(w, "Also: %s\n", t)
	}
	fmt.Fprintln(w)

	if len(b.Actions) > 0 {
		fmt.Fprintln(w, "Actions:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  DATE\tCHAMBER\tDESCRIPTION\tCLASSIFICATION")
		for _, a := range b.Actions {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", a.Date, a.Chamber, a.Description, strings.Join(a.Classification, ","))
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(b.Sponsorships) > 0 {
		fmt.Fprintln(w, "Sponsors:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tCLASSIFICATION\tPRIMARY\tLINKED")
		for _, s := range b.Sponsorships {
			id := s.PersonID
			if id == nil {
				id = s.OrganizationID
			}
			fmt.Fprintf(tw, "  %s\t%s\t%t\t%s\n", s.Name, s.Classification, s.Primary, linked(id))
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	formatDocumentsText(w, "Versions:", b.Versions)
	formatDocumentsText(w, "Documents:", b.Documents)

	if len(b.RelatedBills) > 0 {
		fmt.Fprintln(w, "Related bills:")
		for _, r := range b.RelatedBills {
			fmt.Fprintf(w, "  %s %s (%s) %s\n", r.LegislativeSession, r.Identifier, r.RelationType, linked(r.RelatedBillID))
		}
		fmt.Fprintln(w)
	}
	formatSourcesText(w, b.Sources)
}

func formatDocumentsText(w io.Writer, heading string, docs []CLIDocument) {
	if len(docs) == 0 {
		return
	}
	fmt.Fprintln(w, heading)
	for _, d := range docs {
		fmt.Fprintf(w, "  %s %s\n", d.Date, d.Note)
		for _, l := range d.Links {
			fmt.Fprintf(w, "    %s %s\n", l.URL, l.MediaType)
		}
	}
	fmt.Fprintln(w)
}

func formatSourcesText(w io.Writer, sources []CLISource) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "Sources:")
	for _, s := range sources {
		fmt.Fprintf(w, "  %s\n", s.URL)
	}
}

func formatNamesText(w io.Writer, names []CLIName) {
	for _, n := range names {
		fmt.Fprintf(w, "Also known as: %s\n", n.Name)
	}
}

func formatMembershipsText(w io.Writer, ms []CLIMembership) {
	if len(ms) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Memberships:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PERSON\tORGANIZATION\tROLE\tSTART\tEND")
	for _, m := range ms {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", m.PersonID, m.OrganizationID, m.Role, m.StartDate, m.EndDate)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// formatOrganizationText formats an organization as readable text.
func formatOrganizationText(w io.Writer, o CLIOrganization) {
	fmt.Fprintf(w, "%s (%s)\n", o.Name, o.Classification)
	fmt.Fprintf(w, "ID: %s\n", o.ID)
	if o.ParentID != nil {
		fmt.Fprintf(w, "Parent: %s\n", *o.ParentID)
	}
	formatNamesText(w, o.OtherNames)
	formatMembershipsText(w, o.Memberships)
	formatSourcesText(w, o.Sources)
}

// formatPersonText formats a person as readable text.
func formatPersonText(w io.Writer, p CLIPerson) {
	fmt.Fprintln(w, p.Name)
	fmt.Fprintf(w, "ID: %s\n", p.ID)
	if p.BirthDate != "" {
		fmt.Fprintf(w, "Born: %s\n", p.BirthDate)
	}
	formatNamesText(w, p.OtherNames)
	formatMembershipsText(w, p.Memberships)
	formatSourcesText(w, p.Sources)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIImportReport:
		formatImportText(w, v)
	case []string:
		formatOrderText(w, v)
	case CLIBill:
		formatBillText(w, v)
	case CLIOrganization:
		formatOrganizationText(w, v)
	case CLIPerson:
		formatPersonText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}
