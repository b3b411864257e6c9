package deps

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a cycle in the template reference graph.
// Chain lists the templates in traversal order and ends with the template
// that closed the cycle, e.g. [a.html b.html a.html].
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular template dependency: %s", strings.Join(e.Chain, " -> "))
}
