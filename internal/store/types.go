package store

import "time"

// Persisted domain types. Optional references are pointers; nil means the
// reference is unlinked.

type Jurisdiction struct {
	ID             string
	Name           string
	URL            string
	Classification string
	DivisionID     string
	CreatedAt      string
	UpdatedAt      string
}

type LegislativeSession struct {
	ID             string
	JurisdictionID string
	Identifier     string
	Name           string
	Classification string
	StartDate      string
	EndDate        string
}

type Organization struct {
	ID              string
	JurisdictionID  string
	Name            string
	Classification  string
	Chamber         string
	ParentID        *string
	FoundingDate    string
	DissolutionDate string
	Image           string
	CreatedAt       string
	UpdatedAt       string
}

type Person struct {
	ID             string
	JurisdictionID string
	Name           string
	BirthDate      string
	DeathDate      string
	Gender         string
	Image          string
	Summary        string
	CreatedAt      string
	UpdatedAt      string
}

type Membership struct {
	ID             string
	JurisdictionID string
	PersonID       string
	OrganizationID string
	Role           string
	Label          string
	StartDate      string
	EndDate        string
}

type OtherName struct {
	ID        string
	Name      string
	Note      string
	StartDate string
	EndDate   string
}

type Source struct {
	ID   string
	URL  string
	Note string
}

type Bill struct {
	ID                   string
	JurisdictionID       string
	LegislativeSession   string
	LegislativeSessionID string
	Identifier           string
	Title                string
	Classification       []string
	Subject              []string
	FromOrganizationID   string
	CreatedAt            string
	UpdatedAt            string
}

type Abstract struct {
	ID       string
	Abstract string
	Note     string
	Date     string
}

type Title struct {
	ID    string
	Title string
	Note  string
}

type Identifier struct {
	ID         string
	Identifier string
	Scheme     string
	Note       string
}

type Action struct {
	ID               string
	BillID           string
	Ord              int
	Description      string
	Date             string
	Classification   []string
	OrganizationName string
	OrganizationID   *string
}

type RelatedEntity struct {
	ID             string
	ActionID       string
	Name           string
	EntityType     string
	PersonID       *string
	OrganizationID *string
}

type Sponsorship struct {
	ID             string
	BillID         string
	Name           string
	EntityType     string
	Classification string
	Primary        bool
	PersonID       *string
	OrganizationID *string
}

type Document struct {
	ID             string
	BillID         string
	Note           string
	Date           string
	Classification string
}

type Link struct {
	ID        string
	URL       string
	MediaType string
	Text      string
}

type RelatedBill struct {
	ID                 string
	BillID             string
	Identifier         string
	LegislativeSession string
	RelationType       string
	RelatedBillID      *string
}

// ImportRun records one pipeline run.
type ImportRun struct {
	ID             string
	JurisdictionID string
	StartedAt      time.Time
	FinishedAt     time.Time
	Created        int
	Updated        int
	Unchanged      int
	Failed         int
}
