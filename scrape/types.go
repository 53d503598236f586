// Package scrape defines the records a scraper hands to docket: one batch
// of jurisdictions, organizations, people, memberships and bills that
// reference each other through temporary ids, stable ids or pseudo ids.
package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Entity type names, also used as file name prefixes.
const (
	TypeJurisdiction = "jurisdiction"
	TypeOrganization = "organization"
	TypePerson       = "person"
	TypeMembership   = "membership"
	TypeBill         = "bill"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("invalid scrape record")

// Record is implemented by every scrape type.
type Record interface {
	EntityType() string
	LocalID() string
	Validate() error
}

func invalid(typ, id, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %s", ErrInvalid, typ, id, fmt.Sprintf(format, args...))
}

// PseudoID builds a "~{…}" reference from natural-key fields. Map keys
// marshal sorted, so equal fields give equal references.
func PseudoID(fields map[string]string) string {
	b, _ := json.Marshal(fields)
	return "~" + string(b)
}

// IsPseudoID reports whether ref is a pseudo id.
func IsPseudoID(ref string) bool { return strings.HasPrefix(ref, "~{") }

// Source is a URL the record was scraped from.
type Source struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

// OtherName is an alternate name of a person or organization.
type OtherName struct {
	Name      string `json:"name"`
	Note      string `json:"note,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func validateSources(typ, id string, sources []Source) error {
	for i, s := range sources {
		if s.URL == "" {
			return invalid(typ, id, "source %d has no url", i)
		}
	}
	return nil
}

// =============================================================================
// Jurisdiction
// =============================================================================

// Session is a legislative session of a jurisdiction.
type Session struct {
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	Classification string `json:"classification,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
}

// Jurisdiction is a governing body. Its id is already stable
// ("ocd-jurisdiction/…").
type Jurisdiction struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	URL                 string    `json:"url"`
	Classification      string    `json:"classification,omitempty"`
	DivisionID          string    `json:"division_id,omitempty"`
	LegislativeSessions []Session `json:"legislative_sessions,omitempty"`
}

// NewJurisdiction returns a jurisdiction with a stable id.
func NewJurisdiction(id, name, url string) *Jurisdiction {
	return &Jurisdiction{ID: id, Name: name, URL: url, Classification: "government"}
}

// AddSession appends a legislative session.
func (j *Jurisdiction) AddSession(identifier, name string) *Session {
	if name == "" {
		name = identifier
	}
	j.LegislativeSessions = append(j.LegislativeSessions, Session{Identifier: identifier, Name: name})
	return &j.LegislativeSessions[len(j.LegislativeSessions)-1]
}

func (j *Jurisdiction) EntityType() string { return TypeJurisdiction }
func (j *Jurisdiction) LocalID() string    { return j.ID }

func (j *Jurisdiction) Validate() error {
	if !strings.HasPrefix(j.ID, "ocd-jurisdiction/") {
		return invalid(TypeJurisdiction, j.ID, "id must start with ocd-jurisdiction/")
	}
	if j.Name == "" {
		return invalid(TypeJurisdiction, j.ID, "name is required")
	}
	seen := make(map[string]bool)
	for _, s := range j.LegislativeSessions {
		if s.Identifier == "" {
			return invalid(TypeJurisdiction, j.ID, "session without identifier")
		}
		if seen[s.Identifier] {
			return invalid(TypeJurisdiction, j.ID, "duplicate session %q", s.Identifier)
		}
		seen[s.Identifier] = true
	}
	return nil
}

// =============================================================================
// Organization
// =============================================================================

// Organization is a legislature, chamber, committee or party.
type Organization struct {
	ID              string      `json:"_id"`
	Name            string      `json:"name"`
	Classification  string      `json:"classification"`
	Chamber         string      `json:"chamber,omitempty"`
	ParentID        string      `json:"parent_id,omitempty"`
	FoundingDate    string      `json:"founding_date,omitempty"`
	DissolutionDate string      `json:"dissolution_date,omitempty"`
	Image           string      `json:"image,omitempty"`
	OtherNames      []OtherName `json:"other_names,omitempty"`
	Sources         []Source    `json:"sources,omitempty"`
}

// NewOrganization returns an organization with a fresh temporary id.
func NewOrganization(name, classification string) *Organization {
	return &Organization{ID: uuid.NewString(), Name: name, Classification: classification}
}

func (o *Organization) AddName(name, note string) {
	o.OtherNames = append(o.OtherNames, OtherName{Name: name, Note: note})
}

func (o *Organization) AddSource(url, note string) {
	o.Sources = append(o.Sources, Source{URL: url, Note: note})
}

func (o *Organization) EntityType() string { return TypeOrganization }
func (o *Organization) LocalID() string    { return o.ID }

func (o *Organization) Validate() error {
	if o.Name == "" {
		return invalid(TypeOrganization, o.ID, "name is required")
	}
	if o.Classification == "" {
		return invalid(TypeOrganization, o.ID, "classification is required")
	}
	if o.ParentID != "" && o.ParentID == o.ID {
		return invalid(TypeOrganization, o.ID, "organization is its own parent")
	}
	return validateSources(TypeOrganization, o.ID, o.Sources)
}

// =============================================================================
// Person
// =============================================================================

type Person struct {
	ID         string      `json:"_id"`
	Name       string      `json:"name"`
	BirthDate  string      `json:"birth_date,omitempty"`
	DeathDate  string      `json:"death_date,omitempty"`
	Gender     string      `json:"gender,omitempty"`
	Image      string      `json:"image,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	OtherNames []OtherName `json:"other_names,omitempty"`
	Sources    []Source    `json:"sources,omitempty"`
}

// NewPerson returns a person with a fresh temporary id.
func NewPerson(name string) *Person {
	return &Person{ID: uuid.NewString(), Name: name}
}

func (p *Person) AddName(name, note string) {
	p.OtherNames = append(p.OtherNames, OtherName{Name: name, Note: note})
}

func (p *Person) AddSource(url, note string) {
	p.Sources = append(p.Sources, Source{URL: url, Note: note})
}

func (p *Person) EntityType() string { return TypePerson }
func (p *Person) LocalID() string    { return p.ID }

func (p *Person) Validate() error {
	if p.Name == "" {
		return invalid(TypePerson, p.ID, "name is required")
	}
	return validateSources(TypePerson, p.ID, p.Sources)
}

// =============================================================================
// Membership
// =============================================================================

// Membership links a person to an organization. Both ends are references.
type Membership struct {
	ID             string `json:"_id"`
	PersonID       string `json:"person_id"`
	OrganizationID string `json:"organization_id"`
	PersonName     string `json:"person_name,omitempty"`
	Role           string `json:"role,omitempty"`
	Label          string `json:"label,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
}

// NewMembership returns a membership with a fresh temporary id.
func NewMembership(personID, organizationID, role string) *Membership {
	return &Membership{ID: uuid.NewString(), PersonID: personID, OrganizationID: organizationID, Role: role}
}

func (m *Membership) EntityType() string { return TypeMembership }
func (m *Membership) LocalID() string    { return m.ID }

func (m *Membership) Validate() error {
	if m.PersonID == "" {
		return invalid(TypeMembership, m.ID, "person_id is required")
	}
	if m.OrganizationID == "" {
		return invalid(TypeMembership, m.ID, "organization_id is required")
	}
	return nil
}
