package docket

import (
	"context"
	"fmt"

	"github.com/jward/docket/internal/store"
)

// QueryBuilder reads imported records back out of the store.
type QueryBuilder struct {
	store *store.Store
}

// ActionDetail is a bill action with its related entities.
type ActionDetail struct {
	*Action
	RelatedEntities []*RelatedEntity
}

// DocumentDetail is a bill document or version with its links.
type DocumentDetail struct {
	*Document
	Links []*Link
}

// BillDetail is a bill with every child collection in stored order.
type BillDetail struct {
	*Bill
	Abstracts    []*Abstract
	Titles       []*Title
	Identifiers  []*Identifier
	Actions      []*ActionDetail
	Sponsorships []*Sponsorship
	Documents    []*DocumentDetail
	Versions     []*DocumentDetail
	RelatedBills []*RelatedBill
	Sources      []*Source
}

// OrganizationDetail is an organization with its names, sources and
// memberships.
type OrganizationDetail struct {
	*Organization
	OtherNames  []*OtherName
	Sources     []*Source
	Memberships []*Membership
}

// PersonDetail is a person with their names, sources and memberships.
type PersonDetail struct {
	*Person
	OtherNames  []*OtherName
	Sources     []*Source
	Memberships []*Membership
}

// Bill returns the bill identified within a session, or nil when none is
// stored.
func (q *QueryBuilder) Bill(ctx context.Context, jurisdictionID, session, identifier string) (*BillDetail, error) {
	b, err := q.store.BillByKey(ctx, jurisdictionID, session, identifier)
	if err != nil {
		return nil, fmt.Errorf("bill: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	return q.billDetail(ctx, b)
}

// BillByID returns the bill with the given id, or nil.
func (q *QueryBuilder) BillByID(ctx context.Context, id string) (*BillDetail, error) {
	b, err := q.store.BillByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bill: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	return q.billDetail(ctx, b)
}

// Bills lists the bills of one session without their children.
func (q *QueryBuilder) Bills(ctx context.Context, jurisdictionID, session string) ([]*Bill, error) {
	return q.store.BillsBySession(ctx, jurisdictionID, session)
}

func (q *QueryBuilder) billDetail(ctx context.Context, b *Bill) (*BillDetail, error) {
	d := &BillDetail{Bill: b}
	var err error
	if d.Abstracts, err = q.store.Abstracts(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if d.Titles, err = q.store.Titles(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if d.Identifiers, err = q.store.Identifiers(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	actions, err := q.store.Actions(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	for _, a := range actions {
		related, err := q.store.RelatedEntities(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		d.Actions = append(d.Actions, &ActionDetail{Action: a, RelatedEntities: related})
	}
	if d.Sponsorships, err = q.store.Sponsorships(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}

	docs, err := q.store.Documents(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if d.Documents, err = q.withLinks(ctx, docs, q.store.DocumentLinks); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	versions, err := q.store.Versions(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if d.Versions, err = q.withLinks(ctx, versions, q.store.VersionLinks); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}

	if d.RelatedBills, err = q.store.RelatedBills(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if d.Sources, err = q.store.Sources(ctx, "bill_sources", "bill_id", b.ID); err != nil {
		return nil, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	return d, nil
}

func (q *QueryBuilder) withLinks(ctx context.Context, docs []*Document, links func(context.Context, string) ([]*Link, error)) ([]*DocumentDetail, error) {
	out := make([]*DocumentDetail, 0, len(docs))
	for _, doc := range docs {
		l, err := links(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &DocumentDetail{Document: doc, Links: l})
	}
	return out, nil
}

// Organization returns the organization with the given id, or nil.
func (q *QueryBuilder) Organization(ctx context.Context, id string) (*OrganizationDetail, error) {
	o, err := q.store.OrganizationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("organization: %w", err)
	}
	if o == nil {
		return nil, nil
	}
	d := &OrganizationDetail{Organization: o}
	if d.OtherNames, err = q.store.OrganizationNames(ctx, id); err != nil {
		return nil, fmt.Errorf("organization %s: %w", id, err)
	}
	if d.Sources, err = q.store.Sources(ctx, "organization_sources", "organization_id", id); err != nil {
		return nil, fmt.Errorf("organization %s: %w", id, err)
	}
	if d.Memberships, err = q.store.MembershipsByOrganization(ctx, id); err != nil {
		return nil, fmt.Errorf("organization %s: %w", id, err)
	}
	return d, nil
}

// Organizations lists a jurisdiction's organizations.
func (q *QueryBuilder) Organizations(ctx context.Context, jurisdictionID string) ([]*Organization, error) {
	return q.store.Organizations(ctx, jurisdictionID)
}

// Person returns the person with the given id, or nil.
func (q *QueryBuilder) Person(ctx context.Context, id string) (*PersonDetail, error) {
	p, err := q.store.PersonByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("person: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	d := &PersonDetail{Person: p}
	if d.OtherNames, err = q.store.PersonNames(ctx, id); err != nil {
		return nil, fmt.Errorf("person %s: %w", id, err)
	}
	if d.Sources, err = q.store.Sources(ctx, "person_sources", "person_id", id); err != nil {
		return nil, fmt.Errorf("person %s: %w", id, err)
	}
	if d.Memberships, err = q.store.MembershipsByPerson(ctx, id); err != nil {
		return nil, fmt.Errorf("person %s: %w", id, err)
	}
	return d, nil
}

// People lists a jurisdiction's people.
func (q *QueryBuilder) People(ctx context.Context, jurisdictionID string) ([]*Person, error) {
	return q.store.People(ctx, jurisdictionID)
}

// Sessions lists a jurisdiction's legislative sessions.
func (q *QueryBuilder) Sessions(ctx context.Context, jurisdictionID string) ([]*LegislativeSession, error) {
	return q.store.Sessions(ctx, jurisdictionID)
}
