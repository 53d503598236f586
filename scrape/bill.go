package scrape

import (
	"github.com/google/uuid"
)

// Bill is a piece of legislation and everything scraped about it.
type Bill struct {
	ID                 string   `json:"_id"`
	Identifier         string   `json:"identifier"`
	LegislativeSession string   `json:"legislative_session"`
	Title              string   `json:"title"`
	Classification     []string `json:"classification,omitempty"`
	Subject            []string `json:"subject,omitempty"`
	// FromOrganization references the originating organization. When
	// empty, the organization of Chamber is used, and failing that the
	// jurisdiction's legislature.
	FromOrganization string `json:"from_organization,omitempty"`
	Chamber          string `json:"chamber,omitempty"`

	Abstracts        []Abstract     `json:"abstracts,omitempty"`
	OtherTitles      []Title        `json:"other_titles,omitempty"`
	OtherIdentifiers []Identifier   `json:"other_identifiers,omitempty"`
	Actions          []*Action      `json:"actions,omitempty"`
	Sponsorships     []*Sponsorship `json:"sponsorships,omitempty"`
	Documents        []*Document    `json:"documents,omitempty"`
	Versions         []*Document    `json:"versions,omitempty"`
	RelatedBills     []RelatedBill  `json:"related_bills,omitempty"`
	Sources          []Source       `json:"sources,omitempty"`
}

type Abstract struct {
	Abstract string `json:"abstract"`
	Note     string `json:"note,omitempty"`
	Date     string `json:"date,omitempty"`
}

type Title struct {
	Title string `json:"title"`
	Note  string `json:"note,omitempty"`
}

type Identifier struct {
	Identifier string `json:"identifier"`
	Scheme     string `json:"scheme,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Action is one step in a bill's history. Order matters.
type Action struct {
	Description     string          `json:"description"`
	Date            string          `json:"date"`
	Classification  []string        `json:"classification,omitempty"`
	Organization    string          `json:"organization_id,omitempty"`
	Chamber         string          `json:"chamber,omitempty"`
	RelatedEntities []RelatedEntity `json:"related_entities,omitempty"`
}

// RelatedEntity is a person or organization named in an action.
type RelatedEntity struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
}

// AddRelatedEntity names a person or organization involved in the action.
// Without an entity id the name is matched against existing records.
func (a *Action) AddRelatedEntity(name, entityType, entityID string) *Action {
	a.RelatedEntities = append(a.RelatedEntities, RelatedEntity{Name: name, EntityType: entityType, EntityID: entityID})
	return a
}

// Sponsorship names a sponsor; EntityID is optional.
type Sponsorship struct {
	Name           string `json:"name"`
	EntityType     string `json:"entity_type"`
	Classification string `json:"classification"`
	Primary        bool   `json:"primary"`
	EntityID       string `json:"entity_id,omitempty"`
}

// Link is one representation of a document or version.
type Link struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Document groups links sharing a note and date.
type Document struct {
	Note           string `json:"note"`
	Date           string `json:"date,omitempty"`
	Classification string `json:"classification,omitempty"`
	Links          []Link `json:"links"`
}

// RelatedBill points at another bill by natural key.
type RelatedBill struct {
	Identifier         string `json:"identifier"`
	LegislativeSession string `json:"legislative_session"`
	RelationType       string `json:"relation_type"`
}

// Ref returns the pseudo id of the related bill.
func (r RelatedBill) Ref() string {
	return PseudoID(map[string]string{"identifier": r.Identifier, "legislative_session": r.LegislativeSession})
}

// BillOption configures NewBill.
type BillOption func(*Bill)

// WithChamber sets the originating chamber.
func WithChamber(chamber string) BillOption {
	return func(b *Bill) { b.Chamber = chamber }
}

// WithFromOrganization sets an explicit originating organization reference.
func WithFromOrganization(ref string) BillOption {
	return func(b *Bill) { b.FromOrganization = ref }
}

// WithClassification sets the bill classification, e.g. "bill", "resolution".
func WithClassification(c ...string) BillOption {
	return func(b *Bill) { b.Classification = c }
}

// WithSubject sets the subjects.
func WithSubject(s ...string) BillOption {
	return func(b *Bill) { b.Subject = s }
}

// NewBill returns a bill with a fresh temporary id.
func NewBill(identifier, session, title string, opts ...BillOption) *Bill {
	b := &Bill{
		ID:                 uuid.NewString(),
		Identifier:         identifier,
		LegislativeSession: session,
		Title:              title,
		Classification:     []string{"bill"},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bill) EntityType() string { return TypeBill }
func (b *Bill) LocalID() string    { return b.ID }

// ActionOption configures AddAction.
type ActionOption func(*Action)

// ActionChamber attributes the action to a chamber.
func ActionChamber(chamber string) ActionOption {
	return func(a *Action) { a.Chamber = chamber }
}

// ActionOrganization attributes the action to an organization reference.
func ActionOrganization(ref string) ActionOption {
	return func(a *Action) { a.Organization = ref }
}

// ActionClassification sets the action classification.
func ActionClassification(c ...string) ActionOption {
	return func(a *Action) { a.Classification = c }
}

// AddAction appends an action. Actions keep the order they were added in.
func (b *Bill) AddAction(description, date string, opts ...ActionOption) *Action {
	a := &Action{Description: description, Date: date}
	for _, o := range opts {
		o(a)
	}
	b.Actions = append(b.Actions, a)
	return a
}

// AddSponsorship appends a sponsor. entityType is "person" or
// "organization".
func (b *Bill) AddSponsorship(name, classification, entityType string, primary bool) *Sponsorship {
	s := &Sponsorship{Name: name, Classification: classification, EntityType: entityType, Primary: primary}
	b.Sponsorships = append(b.Sponsorships, s)
	return s
}

func (b *Bill) AddRelatedBill(identifier, session, relationType string) {
	b.RelatedBills = append(b.RelatedBills, RelatedBill{
		Identifier:         identifier,
		LegislativeSession: session,
		RelationType:       relationType,
	})
}

func (b *Bill) AddAbstract(abstract, note, date string) {
	b.Abstracts = append(b.Abstracts, Abstract{Abstract: abstract, Note: note, Date: date})
}

func (b *Bill) AddTitle(title, note string) {
	b.OtherTitles = append(b.OtherTitles, Title{Title: title, Note: note})
}

func (b *Bill) AddIdentifier(identifier, scheme, note string) {
	b.OtherIdentifiers = append(b.OtherIdentifiers, Identifier{Identifier: identifier, Scheme: scheme, Note: note})
}

func (b *Bill) AddSource(url, note string) {
	b.Sources = append(b.Sources, Source{URL: url, Note: note})
}

// AddDocumentLink adds a link to the document with this note and date,
// creating the document if needed. Links are keyed by url: a second link with
// the same url is ignored, whatever its media type.
func (b *Bill) AddDocumentLink(note, url, mediaType, date string) *Document {
	return addLink(&b.Documents, note, url, mediaType, date)
}

// AddVersionLink is AddDocumentLink for bill versions.
func (b *Bill) AddVersionLink(note, url, mediaType, date string) *Document {
	return addLink(&b.Versions, note, url, mediaType, date)
}

func addLink(docs *[]*Document, note, url, mediaType, date string) *Document {
	var doc *Document
	for _, d := range *docs {
		if d.Note == note && d.Date == date {
			doc = d
			break
		}
	}
	if doc == nil {
		doc = &Document{Note: note, Date: date}
		*docs = append(*docs, doc)
	}
	for _, l := range doc.Links {
		if l.URL == url {
			return doc
		}
	}
	doc.Links = append(doc.Links, Link{URL: url, MediaType: mediaType})
	return doc
}

func (b *Bill) Validate() error {
	switch {
	case b.Identifier == "":
		return invalid(TypeBill, b.ID, "identifier is required")
	case b.LegislativeSession == "":
		return invalid(TypeBill, b.ID, "legislative_session is required")
	case b.Title == "":
		return invalid(TypeBill, b.ID, "title is required")
	}
	for i, a := range b.Actions {
		if a == nil || a.Description == "" || a.Date == "" {
			return invalid(TypeBill, b.ID, "action %d needs a description and a date", i)
		}
		for _, re := range a.RelatedEntities {
			if err := validEntityType(re.EntityType); err != nil {
				return invalid(TypeBill, b.ID, "action %d related entity %q: %v", i, re.Name, err)
			}
		}
	}
	for i, s := range b.Sponsorships {
		if s == nil || s.Name == "" {
			return invalid(TypeBill, b.ID, "sponsorship %d has no name", i)
		}
		if err := validEntityType(s.EntityType); err != nil {
			return invalid(TypeBill, b.ID, "sponsorship %q: %v", s.Name, err)
		}
	}
	for _, docs := range [][]*Document{b.Documents, b.Versions} {
		for _, d := range docs {
			if d == nil || len(d.Links) == 0 {
				return invalid(TypeBill, b.ID, "document without links")
			}
			for _, l := range d.Links {
				if l.URL == "" {
					return invalid(TypeBill, b.ID, "document %q has a link without url", d.Note)
				}
			}
		}
	}
	for _, r := range b.RelatedBills {
		if r.Identifier == "" || r.LegislativeSession == "" {
			return invalid(TypeBill, b.ID, "related bill needs identifier and session")
		}
	}
	return validateSources(TypeBill, b.ID, b.Sources)
}

func validEntityType(t string) error {
	if t != TypePerson && t != TypeOrganization {
		return invalid("entity type", t, "must be person or organization")
	}
	return nil
}
