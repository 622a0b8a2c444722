package result

import "github.com/jacentio/persist/model"

// FindBuilder starts the result of a query returning entities.
type FindBuilder[M any] struct {
	entityType string
}

// ForFind starts a find result about entityType.
func ForFind[M any](entityType string) FindBuilder[M] {
	return FindBuilder[M]{entityType: entityType}
}

func (b FindBuilder[M]) Found() FoundStep[M] {
	return FoundStep[M]{entityType: b.entityType, started: true}
}

// Failed takes the failure branch of the query.
func (b FindBuilder[M]) Failed() CauseStep[Result[[]M]] {
	return newCauseStep(b.entityType, Find, failWith[[]M])
}

// FoundStep is the terminal stage of a successful find.
type FoundStep[M any] struct {
	entityType string
	started    bool
}

// Entities builds the OK result. A nil slice is replaced by an empty one.
func (s FoundStep[M]) Entities(list []M) Result[[]M] {
	mustStart(s.started, "FoundStep")
	return newOK(s.entityType, Find, Found, nonNil(list))
}

// OIDBuilder starts the result of a query returning identifiers only.
type OIDBuilder struct {
	entityType string
}

// ForOIDs starts a find-OIDs result about entityType.
func ForOIDs(entityType string) OIDBuilder {
	return OIDBuilder{entityType: entityType}
}

func (b OIDBuilder) Found() FoundOIDsStep {
	return FoundOIDsStep{entityType: b.entityType, started: true}
}

func (b OIDBuilder) Failed() CauseStep[Result[[]model.OID]] {
	return newCauseStep(b.entityType, Find, failWith[[]model.OID])
}

// FoundOIDsStep is the terminal stage of a successful find-OIDs.
type FoundOIDsStep struct {
	entityType string
	started    bool
}

func (s FoundOIDsStep) OIDs(list []model.OID) Result[[]model.OID] {
	mustStart(s.started, "FoundOIDsStep")
	return newOK(s.entityType, Find, Found, nonNil(list))
}

// SummaryBuilder starts the result of a query returning summaries of type S.
type SummaryBuilder[S any] struct {
	entityType string
}

// ForSummaries starts a find-summaries result about entityType.
func ForSummaries[S any](entityType string) SummaryBuilder[S] {
	return SummaryBuilder[S]{entityType: entityType}
}

func (b SummaryBuilder[S]) Found() FoundSummariesStep[S] {
	return FoundSummariesStep[S]{entityType: b.entityType, started: true}
}

func (b SummaryBuilder[S]) Failed() CauseStep[Result[[]S]] {
	return newCauseStep(b.entityType, Find, failWith[[]S])
}

// FoundSummariesStep is the terminal stage of a successful find-summaries.
type FoundSummariesStep[S any] struct {
	entityType string
	started    bool
}

func (s FoundSummariesStep[S]) Summaries(list []S) Result[[]S] {
	mustStart(s.started, "FoundSummariesStep")
	return newOK(s.entityType, Find, Found, nonNil(list))
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
