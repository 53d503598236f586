package docket

import (
	"github.com/jward/docket/internal/importer"
	"github.com/jward/docket/internal/pipeline"
	"github.com/jward/docket/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs.

type Store = store.Store
type Report = pipeline.Report
type Result = importer.Result
type Item = importer.Item
type Outcome = importer.Outcome
type ImportRun = store.ImportRun

const (
	Created   = importer.Created
	Updated   = importer.Updated
	Unchanged = importer.Unchanged
	Failed    = importer.Failed
)

type Jurisdiction = store.Jurisdiction
type LegislativeSession = store.LegislativeSession
type Organization = store.Organization
type Person = store.Person
type Membership = store.Membership
type OtherName = store.OtherName
type Source = store.Source
type Bill = store.Bill
type Abstract = store.Abstract
type Title = store.Title
type Identifier = store.Identifier
type Action = store.Action
type RelatedEntity = store.RelatedEntity
type Sponsorship = store.Sponsorship
type Document = store.Document
type Link = store.Link
type RelatedBill = store.RelatedBill
