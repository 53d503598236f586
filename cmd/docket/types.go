package main

import (
	"github.com/jward/docket"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLICounts holds per-outcome record counts.
type CLICounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// CLITypeResult is the outcome of one entity type.
type CLITypeResult struct {
	Type string `json:"type"`
	CLICounts
}

// CLIFailure is one record that failed to import.
type CLIFailure struct {
	Type    string `json:"type"`
	LocalID string `json:"local_id"`
	Key     string `json:"key,omitempty"`
	Error   string `json:"error"`
}

// CLIImportReport summarizes an import.
type CLIImportReport struct {
	Jurisdiction string          `json:"jurisdiction"`
	Types        []CLITypeResult `json:"types"`
	Totals       CLICounts       `json:"totals"`
	Failures     []CLIFailure    `json:"failures,omitempty"`
}

func toCLIImportReport(jurisdiction string, r *docket.Report) CLIImportReport {
	out := CLIImportReport{Jurisdiction: jurisdiction, Types: []CLITypeResult{}}
	for _, res := range r.Results {
		out.Types = append(out.Types, CLITypeResult{Type: res.Type, CLICounts: CLICounts{
			Created:   res.Count(docket.Created),
			Updated:   res.Count(docket.Updated),
			Unchanged: res.Count(docket.Unchanged),
			Failed:    res.Count(docket.Failed),
		}})
		for _, item := range res.Failures() {
			f := CLIFailure{Type: res.Type, LocalID: item.LocalID, Key: item.Key}
			if item.Err != nil {
				f.Error = item.Err.Error()
			}
			out.Failures = append(out.Failures, f)
		}
	}
	out.Totals = CLICounts{
		Created:   r.Count(docket.Created),
		Updated:   r.Count(docket.Updated),
		Unchanged: r.Count(docket.Unchanged),
		Failed:    r.Count(docket.Failed),
	}
	return out
}

// CLISource is a source URL.
type CLISource struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

func toCLISources(sources []*docket.Source) []CLISource {
	out := make([]CLISource, 0, len(sources))
	for _, s := range sources {
		out = append(out, CLISource{URL: s.URL, Note: s.Note})
	}
	return out
}

// CLIName is an alternate name.
type CLIName struct {
	Name      string `json:"name"`
	Note      string `json:"note,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func toCLINames(names []*docket.OtherName) []CLIName {
	out := make([]CLIName, 0, len(names))
	for _, n := range names {
		out = append(out, CLIName{Name: n.Name, Note: n.Note, StartDate: n.StartDate, EndDate: n.EndDate})
	}
	return out
}

// CLIMembership is a person's seat in an organization.
type CLIMembership struct {
	ID             string `json:"id"`
	PersonID       string `json:"person_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role,omitempty"`
	Label          string `json:"label,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
}

func toCLIMemberships(ms []*docket.Membership) []CLIMembership {
	out := make([]CLIMembership, 0, len(ms))
	for _, m := range ms {
		out = append(out, CLIMembership{
			ID: m.ID, PersonID: m.PersonID, OrganizationID: m.OrganizationID,
			Role: m.Role, Label: m.Label, StartDate: m.StartDate, EndDate: m.EndDate,
		})
	}
	return out
}

// CLIOrganization is a JSON-friendly organization.
type CLIOrganization struct {
	ID             string          `json:"id"`
	JurisdictionID string          `json:"jurisdiction_id"`
	Name           string          `json:"name"`
	Classification string          `json:"classification"`
	Chamber        string          `json:"chamber,omitempty"`
	ParentID       *string         `json:"parent_id,omitempty"`
	OtherNames     []CLIName       `json:"other_names"`
	Memberships    []CLIMembership `json:"memberships"`
	Sources        []CLISource     `json:"sources"`
}

func toCLIOrganization(d *docket.OrganizationDetail) CLIOrganization {
	return CLIOrganization{
		ID:             d.ID,
		JurisdictionID: d.JurisdictionID,
		Name:           d.Name,
		Classification: d.Classification,
		Chamber:        d.Chamber,
		ParentID:       d.ParentID,
		OtherNames:     toCLINames(d.OtherNames),
		Memberships:    toCLIMemberships(d.Memberships),
		Sources:        toCLISources(d.Sources),
	}
}

// CLIPerson is a JSON-friendly person.
type CLIPerson struct {
	ID             string          `json:"id"`
	JurisdictionID string          `json:"jurisdiction_id"`
	Name           string          `json:"name"`
	BirthDate      string          `json:"birth_date,omitempty"`
	DeathDate      string          `json:"death_date,omitempty"`
	Gender         string          `json:"gender,omitempty"`
	OtherNames     []CLIName       `json:"other_names"`
	Memberships    []CLIMembership `json:"memberships"`
	Sources        []CLISource     `json:"sources"`
}

func toCLIPerson(d *docket.PersonDetail) CLIPerson {
	return CLIPerson{
		ID:             d.ID,
		JurisdictionID: d.JurisdictionID,
		Name:           d.Name,
		BirthDate:      d.BirthDate,
		DeathDate:      d.DeathDate,
		Gender:         d.Gender,
		OtherNames:     toCLINames(d.OtherNames),
		Memberships:    toCLIMemberships(d.Memberships),
		Sources:        toCLISources(d.Sources),
	}
}

// CLIEntity is a sponsor or an entity related to an action.
type CLIEntity struct {
	Name           string  `json:"name"`
	EntityType     string  `json:"entity_type"`
	Classification string  `json:"classification,omitempty"`
	Primary        bool    `json:"primary,omitempty"`
	PersonID       *string `json:"person_id,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

// CLIAction is a bill action.
type CLIAction struct {
	Description     string      `json:"description"`
	Date            string      `json:"date"`
	Classification  []string    `json:"classification"`
	Chamber         string      `json:"chamber,omitempty"`
	OrganizationID  *string     `json:"organization_id,omitempty"`
	RelatedEntities []CLIEntity `json:"related_entities,omitempty"`
}

// CLILink is one URL of a document.
type CLILink struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type,omitempty"`
	Text      string `json:"text,omitempty"`
}

// CLIDocument is a bill document or version.
type CLIDocument struct {
	Note  string    `json:"note"`
	Date  string    `json:"date,omitempty"`
	Links []CLILink `json:"links"`
}

// CLIRelatedBill is a reference to another bill.
type CLIRelatedBill struct {
	Identifier         string  `json:"identifier"`
	LegislativeSession string  `json:"legislative_session"`
	RelationType       string  `json:"relation_type"`
	RelatedBillID      *string `json:"related_bill_id,omitempty"`
}

// CLIBill is a JSON-friendly bill with its children.
type CLIBill struct {
	ID                 string           `json:"id"`
	JurisdictionID     string           `json:"jurisdiction_id"`
	LegislativeSession string           `json:"legislative_session"`
	Identifier         string           `json:"identifier"`
	Title              string           `json:"title"`
	Classification     []string         `json:"classification"`
	Subject            []string         `json:"subject"`
	FromOrganizationID string           `json:"from_organization_id"`
	OtherTitles        []string         `json:"other_titles,omitempty"`
	OtherIdentifiers   []string         `json:"other_identifiers,omitempty"`
	Abstracts          []string         `json:"abstracts,omitempty"`
	Actions            []CLIAction      `json:"actions"`
	Sponsorships       []CLIEntity      `json:"sponsorships"`
	Documents          []CLIDocument    `json:"documents"`
	Versions           []CLIDocument    `json:"versions"`
	RelatedBills       []CLIRelatedBill `json:"related_bills"`
	Sources            []CLISource      `json:"sources"`
}

func toCLIDocuments(docs []*docket.DocumentDetail) []CLIDocument {
	out := make([]CLIDocument, 0, len(docs))
	for _, d := range docs {
		doc := CLIDocument{Note: d.Note, Date: d.Date, Links: make([]CLILink, 0, len(d.Links))}
		for _, l := range d.Links {
			doc.Links = append(doc.Links, CLILink{URL: l.URL, MediaType: l.MediaType, Text: l.Text})
		}
		out = append(out, doc)
	}
	return out
}

func toCLIBill(d *docket.BillDetail) CLIBill {
	b := CLIBill{
		ID:                 d.ID,
		JurisdictionID:     d.JurisdictionID,
		LegislativeSession: d.LegislativeSession,
		Identifier:         d.Identifier,
		Title:              d.Title,
		Classification:     d.Classification,
		Subject:            d.Subject,
		FromOrganizationID: d.FromOrganizationID,
		Actions:            make([]CLIAction, 0, len(d.Actions)),
		Sponsorships:       make([]CLIEntity, 0, len(d.Sponsorships)),
		Documents:          toCLIDocuments(d.Documents),
		Versions:           toCLIDocuments(d.Versions),
		RelatedBills:       make([]CLIRelatedBill, 0, len(d.RelatedBills)),
		Sources:            toCLISources(d.Sources),
	}
	for _, t := range d.Titles {
		b.OtherTitles = append(b.OtherTitles, t.Title)
	}
	for _, id := range d.Identifiers {
		b.OtherIdentifiers = append(b.OtherIdentifiers, id.Identifier)
	}
	for _, a := range d.Abstracts {
		b.Abstracts = append(b.Abstracts, a.Abstract)
	}
	for _, a := range d.Actions {
		act := CLIAction{
			Description:    a.Description,
			Date:           a.Date,
			Classification: a.Classification,
			Chamber:        a.OrganizationName,
			OrganizationID: a.OrganizationID,
		}
		for _, re := range a.RelatedEntities {
			act.RelatedEntities = append(act.RelatedEntities, CLIEntity{
				Name: re.Name, EntityType: re.EntityType, PersonID: re.PersonID, OrganizationID: re.OrganizationID,
			})
		}
		b.Actions = append(b.Actions, act)
	}
	for _, s := range d.Sponsorships {
		b.Sponsorships = append(b.Sponsorships, CLIEntity{
			Name: s.Name, EntityType: s.EntityType, Classification: s.Classification,
			Primary: s.Primary, PersonID: s.PersonID, OrganizationID: s.OrganizationID,
		})
	}
	for _, r := range d.RelatedBills {
		b.RelatedBills = append(b.RelatedBills, CLIRelatedBill{
			Identifier: r.Identifier, LegislativeSession: r.LegislativeSession,
			RelationType: r.RelationType, RelatedBillID: r.RelatedBillID,
		})
	}
	return b
}
