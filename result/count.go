package result

// CountBuilder starts the result of a count query.
type CountBuilder struct {
	entityType string
}

// ForCount starts a count result about entityType.
func ForCount(entityType string) CountBuilder {
	return CountBuilder{entityType: entityType}
}

// Counted builds the OK result.
func (b CountBuilder) Counted(n int64) Result[int64] {
	return newOK(b.entityType, Find, Found, n)
}

func (b CountBuilder) NotCounted() CauseStep[Result[int64]] {
	return newCauseStep(b.entityType, Find, failWith[int64])
}
