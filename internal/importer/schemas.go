package importer

import (
	"fmt"

	"github.com/jward/docket/internal/resolve"
	"github.com/jward/docket/scrape"
)

// Schemas returns the schemas of every supported entity type.
func Schemas() []Schema {
	return []Schema{
		JurisdictionSchema(),
		OrganizationSchema(),
		PersonSchema(),
		MembershipSchema(),
		BillSchema(),
	}
}

func sourceChild(table, parent string) ChildSpec {
	return ChildSpec{
		Name:         "sources",
		Table:        table,
		ParentColumn: parent,
		Columns:      []string{"url", "note"},
		Key:          []string{"url"},
	}
}

func nameChild(table, parent string) ChildSpec {
	return ChildSpec{
		Name:         "other_names",
		Table:        table,
		ParentColumn: parent,
		Columns:      []string{"name", "note", "start_date", "end_date"},
	}
}

func validate(rec Record) error {
	if v, ok := rec.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

func addSources(e *Entity, sources []scrape.Source) {
	for _, s := range sources {
		e.Add("sources", NewEntity("").Put("url", s.URL).Put("note", s.Note))
	}
}

func addNames(e *Entity, names []scrape.OtherName) {
	for _, n := range names {
		e.Add("other_names", NewEntity("").
			Put("name", n.Name).Put("note", n.Note).
			Put("start_date", n.StartDate).Put("end_date", n.EndDate))
	}
}

// =============================================================================
// Jurisdiction
// =============================================================================

func JurisdictionSchema() Schema {
	return Schema{
		Type:        scrape.TypeJurisdiction,
		Table:       "jurisdictions",
		NaturalKey:  []string{"id"},
		Columns:     []string{"name", "url", "classification", "division_id"},
		KeepLocalID: true,
		Children: []ChildSpec{{
			Name:         "legislative_sessions",
			Table:        "legislative_sessions",
			ParentColumn: ScopeColumn,
			Columns:      []string{"identifier", "name", "classification", "start_date", "end_date"},
			Key:          []string{"identifier"},
			AppendOnly:   true,
		}},
		Prepare: prepareJurisdiction,
	}
}

func prepareJurisdiction(rec Record) (*Entity, error) {
	j, ok := rec.(*scrape.Jurisdiction)
	if !ok {
		return nil, fmt.Errorf("unexpected record %T", rec)
	}
	e := NewEntity(j.ID)
	if err := validate(j); err != nil {
		return e, err
	}
	e.Set("name", j.Name).Set("url", j.URL).Set("classification", j.Classification).Set("division_id", j.DivisionID)
	for _, s := range j.LegislativeSessions {
		e.Add("legislative_sessions", NewEntity("").
			Put("identifier", s.Identifier).Put("name", s.Name).
			Put("classification", s.Classification).
			Put("start_date", s.StartDate).Put("end_date", s.EndDate))
	}
	return e, nil
}

// =============================================================================
// Organization
// =============================================================================

func OrganizationSchema() Schema {
	return Schema{
		Type:       scrape.TypeOrganization,
		Table:      "organizations",
		Scoped:     true,
		NaturalKey: []string{ScopeColumn, "classification", "parent_id", "name"},
		Columns:    []string{"chamber", "founding_date", "dissolution_date", "image"},
		Refs: []RefSpec{
			{Column: "parent_id", Type: scrape.TypeOrganization, Policy: Optional},
		},
		Children: []ChildSpec{
			nameChild("organization_names", "organization_id"),
			sourceChild("organization_sources", "organization_id"),
		},
		DependsOn: []string{scrape.TypeJurisdiction},
		ParentRef: "parent_id",
		Prepare:   prepareOrganization,
	}
}

func prepareOrganization(rec Record) (*Entity, error) {
	o, ok := rec.(*scrape.Organization)
	if !ok {
		return nil, fmt.Errorf("unexpected record %T", rec)
	}
	e := NewEntity(o.ID)
	if err := validate(o); err != nil {
		return e, err
	}
	e.Put("name", o.Name).Put("classification", o.Classification).
		Set("chamber", o.Chamber).
		Set("founding_date", o.FoundingDate).
		Set("dissolution_date", o.DissolutionDate).
		Set("image", o.Image)
	e.Ref("parent_id", o.ParentID)
	addNames(e, o.OtherNames)
	addSources(e, o.Sources)
	return e, nil
}

// =============================================================================
// Person
// =============================================================================

func PersonSchema() Schema {
	return Schema{
		Type:       scrape.TypePerson,
		Table:      "people",
		Scoped:     true,
		NaturalKey: []string{ScopeColumn, "name", "birth_date"},
		Columns:    []string{"death_date", "gender", "image", "summary"},
		Children: []ChildSpec{
			nameChild("person_names", "person_id"),
			sourceChild("person_sources", "person_id"),
		},
		DependsOn: []string{scrape.TypeJurisdiction},
		Prepare:   preparePerson,
	}
}

func preparePerson(rec Record) (*Entity, error) {
	p, ok := rec.(*scrape.Person)
	if !ok {
		return nil, fmt.Errorf("unexpected record %T", rec)
	}
	e := NewEntity(p.ID)
	if err := validate(p); err != nil {
		return e, err
	}
	e.Put("name", p.Name).
		Set("birth_date", p.BirthDate).
		Set("death_date", p.DeathDate).
		Set("gender", p.Gender).
		Set("image", p.Image).
		Set("summary", p.Summary)
	addNames(e, p.OtherNames)
	addSources(e, p.Sources)
	return e, nil
}

// =============================================================================
// Membership
// =============================================================================

func MembershipSchema() Schema {
	return Schema{
		Type:       scrape.TypeMembership,
		Table:      "memberships",
		Scoped:     true,
		NaturalKey: []string{ScopeColumn, "person_id", "organization_id", "role"},
		Columns:    []string{"label", "start_date", "end_date"},
		Refs: []RefSpec{
			{Column: "person_id", Type: scrape.TypePerson, Policy: Required},
			{Column: "organization_id", Type: scrape.TypeOrganization, Policy: Required},
		},
		DependsOn: []string{scrape.TypePerson, scrape.TypeOrganization},
		Prepare:   prepareMembership,
	}
}

func prepareMembership(rec Record) (*Entity, error) {
	m, ok := rec.(*scrape.Membership)
	if !ok {
		return nil, fmt.Errorf("unexpected record %T", rec)
	}
	e := NewEntity(m.ID)
	if err := validate(m); err != nil {
		return e, err
	}
	e.Put("role", m.Role).
		Set("label", m.Label).
		Set("start_date", m.StartDate).
		Set("end_date", m.EndDate)
	e.Ref("person_id", m.PersonID).Ref("organization_id", m.OrganizationID)
	return e, nil
}

// =============================================================================
// Bill
// =============================================================================

// SessionType is the entity type of legislative sessions. Sessions are
// written by the jurisdiction importer and referenced by bills.
const SessionType = "legislative_session"

func BillSchema() Schema {
	unlinkedEntity := []RefSpec{
		{Column: "person_id", Type: scrape.TypePerson, Policy: Unlinked},
		{Column: "organization_id", Type: scrape.TypeOrganization, Policy: Unlinked},
	}
	links := func(table, parent string) ChildSpec {
		return ChildSpec{
			Name:         "links",
			Table:        table,
			ParentColumn: parent,
			Columns:      []string{"url", "media_type", "text"},
			Key:          []string{"url"},
		}
	}
	documents := func(name, table, linkTable, linkParent string) ChildSpec {
		return ChildSpec{
			Name:         name,
			Table:        table,
			ParentColumn: "bill_id",
			Columns:      []string{"note", "date", "classification"},
			Key:          []string{"note", "date"},
			Children:     []ChildSpec{links(linkTable, linkParent)},
		}
	}

	return Schema{
		Type:       scrape.TypeBill,
		Table:      "bills",
		Scoped:     true,
		NaturalKey: []string{ScopeColumn, "legislative_session", "identifier"},
		Columns:    []string{"title", "classification", "subject"},
		Refs: []RefSpec{
			{Column: "legislative_session_id", Type: SessionType, Policy: Required},
			{Column: "from_organization_id", Type: scrape.TypeOrganization, Policy: Required},
		},
		Children: []ChildSpec{
			{
				Name: "abstracts", Table: "bill_abstracts", ParentColumn: "bill_id",
				Columns: []string{"abstract", "note", "date"},
			},
			{
				Name: "other_titles", Table: "bill_titles", ParentColumn: "bill_id",
				Columns: []string{"title", "note"},
			},
			{
				Name: "other_identifiers", Table: "bill_identifiers", ParentColumn: "bill_id",
				Columns: []string{"identifier", "scheme", "note"},
			},
			{
				Name: "actions", Table: "bill_actions", ParentColumn: "bill_id",
				Columns: []string{"description", "date", "classification", "organization_name"},
				Refs: []RefSpec{
					{Column: "organization_id", Type: scrape.TypeOrganization, Policy: Unlinked},
				},
				Ordered: true,
				Children: []ChildSpec{{
					Name: "related_entities", Table: "bill_action_related_entities", ParentColumn: "action_id",
					Columns: []string{"name", "entity_type"},
					Refs:    unlinkedEntity,
				}},
			},
			{
				Name: "sponsorships", Table: "bill_sponsorships", ParentColumn: "bill_id",
				Columns: []string{"name", "entity_type", "classification", "is_primary"},
				Refs:    unlinkedEntity,
			},
			documents("documents", "bill_documents", "bill_document_links", "document_id"),
			documents("versions", "bill_versions", "bill_version_links", "version_id"),
			{
				Name: "related_bills", Table: "bill_related_bills", ParentColumn: "bill_id",
				Columns: []string{"identifier", "legislative_session", "relation_type"},
				Refs: []RefSpec{
					{Column: "related_bill_id", Type: scrape.TypeBill, Policy: Unlinked, Deferred: true},
				},
				Key: []string{"identifier", "legislative_session", "relation_type"},
			},
			sourceChild("bill_sources", "bill_id"),
		},
		DependsOn: []string{scrape.TypeJurisdiction, scrape.TypeOrganization, scrape.TypePerson},
		Prepare:   prepareBill,
	}
}

// entityRef returns the explicit id or a name pseudo id.
func entityRef(id, name string) string {
	if id != "" {
		return id
	}
	return resolve.PseudoID(map[string]any{"name": name})
}

// chamberRef returns the pseudo id of a chamber's organization.
func chamberRef(chamber string) string {
	return resolve.PseudoID(map[string]any{"chamber": chamber})
}

func prepareBill(rec Record) (*Entity, error) {
	b, ok := rec.(*scrape.Bill)
	if !ok {
		return nil, fmt.Errorf("unexpected record %T", rec)
	}
	e := NewEntity(b.ID)
	if err := validate(b); err != nil {
		return e, err
	}
	e.Put("identifier", b.Identifier).
		Put("legislative_session", b.LegislativeSession).
		Put("title", b.Title).
		Set("classification", b.Classification).
		Set("subject", b.Subject)

	e.Ref("legislative_session_id", resolve.PseudoID(map[string]any{"identifier": b.LegislativeSession}))
	switch {
	case b.FromOrganization != "":
		e.Ref("from_organization_id", b.FromOrganization)
	case b.Chamber != "":
		e.Ref("from_organization_id", chamberRef(b.Chamber))
	default:
		e.Ref("from_organization_id", resolve.PseudoID(map[string]any{"classification": "legislature"}))
	}

	for _, a := range b.Abstracts {
		e.Add("abstracts", NewEntity("").Put("abstract", a.Abstract).Put("note", a.Note).Put("date", a.Date))
	}
	for _, t := range b.OtherTitles {
		e.Add("other_titles", NewEntity("").Put("title", t.Title).Put("note", t.Note))
	}
	for _, id := range b.OtherIdentifiers {
		e.Add("other_identifiers", NewEntity("").Put("identifier", id.Identifier).Put("scheme", id.Scheme).Put("note", id.Note))
	}
	for _, a := range b.Actions {
		classification := a.Classification
		if classification == nil {
			classification = []string{}
		}
		ae := NewEntity("").
			Put("description", a.Description).
			Put("date", a.Date).
			Put("classification", classification).
			Put("organization_name", a.Chamber)
		switch {
		case a.Organization != "":
			ae.Ref("organization_id", a.Organization)
		case a.Chamber != "":
			ae.Ref("organization_id", chamberRef(a.Chamber))
		}
		for _, re := range a.RelatedEntities {
			ae.Add("related_entities", relatedEntity(re.Name, re.EntityType, re.EntityID))
		}
		e.Add("actions", ae)
	}
	for _, s := range b.Sponsorships {
		se := relatedEntity(s.Name, s.EntityType, s.EntityID).
			Put("classification", s.Classification).
			Put("is_primary", s.Primary)
		e.Add("sponsorships", se)
	}
	addDocuments(e, "documents", b.Documents)
	addDocuments(e, "versions", b.Versions)
	for _, r := range b.RelatedBills {
		e.Add("related_bills", NewEntity("").
			Put("identifier", r.Identifier).
			Put("legislative_session", r.LegislativeSession).
			Put("relation_type", r.RelationType).
			Ref("related_bill_id", r.Ref()))
	}
	addSources(e, b.Sources)
	return e, nil
}

func relatedEntity(name, entityType, entityID string) *Entity {
	e := NewEntity("").Put("name", name).Put("entity_type", entityType)
	col := "person_id"
	if entityType == scrape.TypeOrganization {
		col = "organization_id"
	}
	return e.Ref(col, entityRef(entityID, name))
}

func addDocuments(e *Entity, collection string, docs []*scrape.Document) {
	for _, d := range docs {
		de := NewEntity("").Put("note", d.Note).Put("date", d.Date).Put("classification", d.Classification)
		for _, l := range d.Links {
			de.Add("links", NewEntity("").Put("url", l.URL).Put("media_type", l.MediaType).Put("text", l.Text))
		}
		e.Add(collection, de)
	}
}
