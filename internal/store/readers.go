package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type scanner interface{ Scan(...any) error }

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, s *Store, what string, scan func(scanner) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// queryOne returns nil, nil when no row matches.
func queryOne[T any](ctx context.Context, s *Store, what string, scan func(scanner) (*T, error), query string, args ...any) (*T, error) {
	v, err := scan(s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

func ptrOf(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Find returns rows of table matching the given columns, outside any
// transaction.
func (s *Store) Find(ctx context.Context, table string, match map[string]any) ([]map[string]any, error) {
	return findRows(ctx, s.db, s.dialect, table, match)
}

// =============================================================================
// Jurisdictions
// =============================================================================

func scanJurisdiction(sc scanner) (*Jurisdiction, error) {
	j := &Jurisdiction{}
	var url, class, div sql.NullString
	if err := sc.Scan(&j.ID, &j.Name, &url, &class, &div, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.URL, j.Classification, j.DivisionID = str(url), str(class), str(div)
	return j, nil
}

func (s *Store) JurisdictionByID(ctx context.Context, id string) (*Jurisdiction, error) {
	return queryOne(ctx, s, "jurisdiction by id", scanJurisdiction,
		"SELECT id, name, url, classification, division_id, created_at, updated_at FROM jurisdictions WHERE id = ?", id)
}

func scanSession(sc scanner) (*LegislativeSession, error) {
	ls := &LegislativeSession{}
	var name, class, start, end sql.NullString
	if err := sc.Scan(&ls.ID, &ls.JurisdictionID, &ls.Identifier, &name, &class, &start, &end); err != nil {
		return nil, err
	}
	ls.Name, ls.Classification, ls.StartDate, ls.EndDate = str(name), str(class), str(start), str(end)
	return ls, nil
}

// Sessions returns the legislative sessions of a jurisdiction.
func (s *Store) Sessions(ctx context.Context, jurisdictionID string) ([]*LegislativeSession, error) {
	return queryAll(ctx, s, "sessions", scanSession,
		"SELECT id, jurisdiction_id, identifier, name, classification, start_date, end_date FROM legislative_sessions WHERE jurisdiction_id = ? ORDER BY identifier",
		jurisdictionID)
}

// =============================================================================
// Organizations & people
// =============================================================================

const organizationCols = "id, jurisdiction_id, name, classification, chamber, parent_id, founding_date, dissolution_date, image, created_at, updated_at"

func scanOrganization(sc scanner) (*Organization, error) {
	o := &Organization{}
	var chamber, parent, founding, dissolution, image sql.NullString
	if err := sc.Scan(&o.ID, &o.JurisdictionID, &o.Name, &o.Classification, &chamber, &parent,
		&founding, &dissolution, &image, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Chamber, o.ParentID = str(chamber), ptrOf(parent)
	o.FoundingDate, o.DissolutionDate, o.Image = str(founding), str(dissolution), str(image)
	return o, nil
}

func (s *Store) OrganizationByID(ctx context.Context, id string) (*Organization, error) {
	return queryOne(ctx, s, "organization by id", scanOrganization,
		"SELECT "+organizationCols+" FROM organizations WHERE id = ?", id)
}

func (s *Store) Organizations(ctx context.Context, jurisdictionID string) ([]*Organization, error) {
	return queryAll(ctx, s, "organizations", scanOrganization,
		"SELECT "+organizationCols+" FROM organizations WHERE jurisdiction_id = ? ORDER BY classification, name", jurisdictionID)
}

const personCols = "id, jurisdiction_id, name, birth_date, death_date, gender, image, summary, created_at, updated_at"

func scanPerson(sc scanner) (*Person, error) {
	p := &Person{}
	var birth, death, gender, image, summary sql.NullString
	if err := sc.Scan(&p.ID, &p.JurisdictionID, &p.Name, &birth, &death, &gender, &image, &summary,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BirthDate, p.DeathDate, p.Gender = str(birth), str(death), str(gender)
	p.Image, p.Summary = str(image), str(summary)
	return p, nil
}

func (s *Store) PersonByID(ctx context.Context, id string) (*Person, error) {
	return queryOne(ctx, s, "person by id", scanPerson, "SELECT "+personCols+" FROM people WHERE id = ?", id)
}

func (s *Store) People(ctx context.Context, jurisdictionID string) ([]*Person, error) {
	return queryAll(ctx, s, "people", scanPerson,
		"SELECT "+personCols+" FROM people WHERE jurisdiction_id = ? ORDER BY name", jurisdictionID)
}

func scanOtherName(sc scanner) (*OtherName, error) {
	n := &OtherName{}
	var note, start, end sql.NullString
	if err := sc.Scan(&n.ID, &n.Name, &note, &start, &end); err != nil {
		return nil, err
	}
	n.Note, n.StartDate, n.EndDate = str(note), str(start), str(end)
	return n, nil
}

func (s *Store) OrganizationNames(ctx context.Context, organizationID string) ([]*OtherName, error) {
	return queryAll(ctx, s, "organization names", scanOtherName,
		"SELECT id, name, note, start_date, end_date FROM organization_names WHERE organization_id = ? ORDER BY name, id", organizationID)
}

func (s *Store) PersonNames(ctx context.Context, personID string) ([]*OtherName, error) {
	return queryAll(ctx, s, "person names", scanOtherName,
		"SELECT id, name, note, start_date, end_date FROM person_names WHERE person_id = ? ORDER BY name, id", personID)
}

func scanSource(sc scanner) (*Source, error) {
	src := &Source{}
	var note sql.NullString
	if err := sc.Scan(&src.ID, &src.URL, &note); err != nil {
		return nil, err
	}
	src.Note = str(note)
	return src, nil
}

// Sources returns the sources stored in table ("bill_sources",
// "organization_sources", "person_sources") for one parent.
func (s *Store) Sources(ctx context.Context, table, parentColumn, parentID string) ([]*Source, error) {
	if err := checkIdent(table, parentColumn); err != nil {
		return nil, err
	}
	return queryAll(ctx, s, table, scanSource,
		"SELECT id, url, note FROM "+table+" WHERE "+parentColumn+" = ? ORDER BY url, id", parentID)
}

func scanMembership(sc scanner) (*Membership, error) {
	m := &Membership{}
	var label, start, end sql.NullString
	if err := sc.Scan(&m.ID, &m.JurisdictionID, &m.PersonID, &m.OrganizationID, &m.Role, &label, &start, &end); err != nil {
		return nil, err
	}
	m.Label, m.StartDate, m.EndDate = str(label), str(start), str(end)
	return m, nil
}

const membershipCols = "id, jurisdiction_id, person_id, organization_id, role, label, start_date, end_date"

func (s *Store) MembershipsByPerson(ctx context.Context, personID string) ([]*Membership, error) {
	return queryAll(ctx, s, "memberships by person", scanMembership,
		"SELECT "+membershipCols+" FROM memberships WHERE person_id = ? ORDER BY organization_id, role", personID)
}

func (s *Store) MembershipsByOrganization(ctx context.Context, organizationID string) ([]*Membership, error) {
	return queryAll(ctx, s, "memberships by organization", scanMembership,
		"SELECT "+membershipCols+" FROM memberships WHERE organization_id = ? ORDER BY person_id, role", organizationID)
}

// =============================================================================
// Bills
// =============================================================================

const billCols = "id, jurisdiction_id, legislative_session, legislative_session_id, identifier, title, classification, subject, from_organization_id, created_at, updated_at"

func scanBill(sc scanner) (*Bill, error) {
	b := &Bill{}
	var class, subject sql.NullString
	if err := sc.Scan(&b.ID, &b.JurisdictionID, &b.LegislativeSession, &b.LegislativeSessionID, &b.Identifier,
		&b.Title, &class, &subject, &b.FromOrganizationID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Classification, b.Subject = UnmarshalList(str(class)), UnmarshalList(str(subject))
	return b, nil
}

// BillByKey returns the bill with the given natural key, or nil.
func (s *Store) BillByKey(ctx context.Context, jurisdictionID, session, identifier string) (*Bill, error) {
	return queryOne(ctx, s, "bill by key", scanBill,
		"SELECT "+billCols+" FROM bills WHERE jurisdiction_id = ? AND legislative_session = ? AND identifier = ?",
		jurisdictionID, session, identifier)
}

func (s *Store) BillByID(ctx context.Context, id string) (*Bill, error) {
	return queryOne(ctx, s, "bill by id", scanBill, "SELECT "+billCols+" FROM bills WHERE id = ?", id)
}

// BillsBySession lists the bills of one session ordered by identifier.
func (s *Store) BillsBySession(ctx context.Context, jurisdictionID, session string) ([]*Bill, error) {
	return queryAll(ctx, s, "bills by session", scanBill,
		"SELECT "+billCols+" FROM bills WHERE jurisdiction_id = ? AND legislative_session = ? ORDER BY identifier",
		jurisdictionID, session)
}

func (s *Store) Abstracts(ctx context.Context, billID string) ([]*Abstract, error) {
	return queryAll(ctx, s, "abstracts", func(sc scanner) (*Abstract, error) {
		a := &Abstract{}
		var note, date sql.NullString
		if err := sc.Scan(&a.ID, &a.Abstract, &note, &date); err != nil {
			return nil, err
		}
		a.Note, a.Date = str(note), str(date)
		return a, nil
	}, "SELECT id, abstract, note, date FROM bill_abstracts WHERE bill_id = ? ORDER BY abstract, id", billID)
}

func (s *Store) Titles(ctx context.Context, billID string) ([]*Title, error) {
	return queryAll(ctx, s, "titles", func(sc scanner) (*Title, error) {
		t := &Title{}
		var note sql.NullString
		if err := sc.Scan(&t.ID, &t.Title, &note); err != nil {
			return nil, err
		}
		t.Note = str(note)
		return t, nil
	}, "SELECT id, title, note FROM bill_titles WHERE bill_id = ? ORDER BY title, id", billID)
}

func (s *Store) Identifiers(ctx context.Context, billID string) ([]*Identifier, error) {
	return queryAll(ctx, s, "identifiers", func(sc scanner) (*Identifier, error) {
		id := &Identifier{}
		var scheme, note sql.NullString
		if err := sc.Scan(&id.ID, &id.Identifier, &scheme, &note); err != nil {
			return nil, err
		}
		id.Scheme, id.Note = str(scheme), str(note)
		return id, nil
	}, "SELECT id, identifier, scheme, note FROM bill_identifiers WHERE bill_id = ? ORDER BY identifier, id", billID)
}

// Actions returns a bill's actions in stored order.
func (s *Store) Actions(ctx context.Context, billID string) ([]*Action, error) {
	return queryAll(ctx, s, "actions", func(sc scanner) (*Action, error) {
		a := &Action{}
		var class, orgName, orgID sql.NullString
		if err := sc.Scan(&a.ID, &a.BillID, &a.Ord, &a.Description, &a.Date, &class, &orgName, &orgID); err != nil {
			return nil, err
		}
		a.Classification, a.OrganizationName, a.OrganizationID = UnmarshalList(str(class)), str(orgName), ptrOf(orgID)
		return a, nil
	}, "SELECT id, bill_id, ord, description, date, classification, organization_name, organization_id FROM bill_actions WHERE bill_id = ? ORDER BY ord", billID)
}

func (s *Store) RelatedEntities(ctx context.Context, actionID string) ([]*RelatedEntity, error) {
	return queryAll(ctx, s, "related entities", func(sc scanner) (*RelatedEntity, error) {
		re := &RelatedEntity{}
		var person, org sql.NullString
		if err := sc.Scan(&re.ID, &re.ActionID, &re.Name, &re.EntityType, &person, &org); err != nil {
			return nil, err
		}
		re.PersonID, re.OrganizationID = ptrOf(person), ptrOf(org)
		return re, nil
	}, "SELECT id, action_id, name, entity_type, person_id, organization_id FROM bill_action_related_entities WHERE action_id = ? ORDER BY name, id", actionID)
}

func (s *Store) Sponsorships(ctx context.Context, billID string) ([]*Sponsorship, error) {
	return queryAll(ctx, s, "sponsorships", func(sc scanner) (*Sponsorship, error) {
		sp := &Sponsorship{}
		var class, person, org sql.NullString
		if err := sc.Scan(&sp.ID, &sp.BillID, &sp.Name, &sp.EntityType, &class, &sp.Primary, &person, &org); err != nil {
			return nil, err
		}
		sp.Classification, sp.PersonID, sp.OrganizationID = str(class), ptrOf(person), ptrOf(org)
		return sp, nil
	}, "SELECT id, bill_id, name, entity_type, classification, is_primary, person_id, organization_id FROM bill_sponsorships WHERE bill_id = ? ORDER BY is_primary DESC, name, id", billID)
}

func scanDocument(sc scanner) (*Document, error) {
	d := &Document{}
	var note, date, class sql.NullString
	if err := sc.Scan(&d.ID, &d.BillID, &note, &date, &class); err != nil {
		return nil, err
	}
	d.Note, d.Date, d.Classification = str(note), str(date), str(class)
	return d, nil
}

func (s *Store) Documents(ctx context.Context, billID string) ([]*Document, error) {
	return queryAll(ctx, s, "documents", scanDocument,
		"SELECT id, bill_id, note, date, classification FROM bill_documents WHERE bill_id = ? ORDER BY date, note, id", billID)
}

func (s *Store) Versions(ctx context.Context, billID string) ([]*Document, error) {
	return queryAll(ctx, s, "versions", scanDocument,
		"SELECT id, bill_id, note, date, classification FROM bill_versions WHERE bill_id = ? ORDER BY date, note, id", billID)
}

func scanLink(sc scanner) (*Link, error) {
	l := &Link{}
	var media, text sql.NullString
	if err := sc.Scan(&l.ID, &l.URL, &media, &text); err != nil {
		return nil, err
	}
	l.MediaType, l.Text = str(media), str(text)
	return l, nil
}

func (s *Store) DocumentLinks(ctx context.Context, documentID string) ([]*Link, error) {
	return queryAll(ctx, s, "document links", scanLink,
		"SELECT id, url, media_type, text FROM bill_document_links WHERE document_id = ? ORDER BY url, id", documentID)
}

func (s *Store) VersionLinks(ctx context.Context, versionID string) ([]*Link, error) {
	return queryAll(ctx, s, "version links", scanLink,
		"SELECT id, url, media_type, text FROM bill_version_links WHERE version_id = ? ORDER BY url, id", versionID)
}

func (s *Store) RelatedBills(ctx context.Context, billID string) ([]*RelatedBill, error) {
	return queryAll(ctx, s, "related bills", func(sc scanner) (*RelatedBill, error) {
		rb := &RelatedBill{}
		var rel, target sql.NullString
		if err := sc.Scan(&rb.ID, &rb.BillID, &rb.Identifier, &rb.LegislativeSession, &rel, &target); err != nil {
			return nil, err
		}
		rb.RelationType, rb.RelatedBillID = str(rel), ptrOf(target)
		return rb, nil
	}, "SELECT id, bill_id, identifier, legislative_session, relation_type, related_bill_id FROM bill_related_bills WHERE bill_id = ? ORDER BY legislative_session, identifier, id", billID)
}
