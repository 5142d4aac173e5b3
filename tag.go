package cases

// Tag is a type-safe key for metadata on fixtures, sessions and executions.
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from a fixture
func (t Tag[T]) Get(f AnyFixture) (T, bool) {
	val, ok := f.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(f AnyFixture, defaultVal T) T {
	if val, ok := t.Get(f); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value on a fixture
func (t Tag[T]) Set(f AnyFixture, val T) {
	f.SetTag(t, val)
}

// GetFromSession retrieves the tag value from a session
func (t Tag[T]) GetFromSession(s *Session) (T, bool) {
	val, ok := s.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// SetOnSession stores the tag value on a session
func (t Tag[T]) SetOnSession(s *Session, val T) {
	s.SetTag(t, val)
}

// GetFromExecution retrieves the tag value from an execution
func (t Tag[T]) GetFromExecution(e *Execution) (T, bool) {
	val, ok := e.Get(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}
