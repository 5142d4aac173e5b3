package cases

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// sessionKey identifies one session-scoped value: a fixture and the parameter
// indices chosen for every parametrized fixture of its dependency closure, itself
// included.
type sessionKey struct {
	fixture AnyFixture
	params  string
}

func (k sessionKey) String() string {
	return fmt.Sprintf("%s@%p#%s", k.fixture.Name(), k.fixture, k.params)
}

// sessionKeyFor walks the closure of f depth-first, dependencies first, and records
// "<position>=<param index>" for each parametrized fixture. The closure of a session
// fixture holds only session fixtures, so positions are stable across invocations.
func sessionKeyFor(f AnyFixture, chosen map[AnyFixture]int) sessionKey {
	var parts []string
	seen := make(map[AnyFixture]bool)
	position := 0

	var walk func(AnyFixture)
	walk = func(cur AnyFixture) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		for _, dep := range cur.Deps() {
			walk(dep)
		}
		if idx, ok := chosen[cur]; ok && len(cur.Params()) > 0 {
			parts = append(parts, strconv.Itoa(position)+"="+strconv.Itoa(idx))
		}
		position++
	}
	walk(f)

	return sessionKey{fixture: f, params: strings.Join(parts, ",")}
}

type valueCache[K comparable, V any] struct {
	data sync.Map
}

func (c *valueCache[K, V]) Load(key K) (V, bool) {
	value, ok := c.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

func (c *valueCache[K, V]) Store(key K, value V) {
	c.data.Store(key, value)
}

func (c *valueCache[K, V]) Size() int {
	count := 0
	c.data.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

func (c *valueCache[K, V]) Clear() {
	c.data.Range(func(key, value any) bool {
		c.data.Delete(key)
		return true
	})
}
