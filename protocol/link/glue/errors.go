package glue

import "fmt"

// IntegrityError reports a broken internal invariant: a corrupt gap
// back-pointer, a descriptor released twice, a packet with no
// acknowledgment function. These are never recoverable.
type IntegrityError struct {
	Op     string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("glue: integrity violation in %s: %s", e.Op, e.Reason)
}

// integrity reports a violation through the fatal hook.
func (g *Glue) integrity(op, format string, args ...interface{}) {
	g.fatal(&IntegrityError{Op: op, Reason: fmt.Sprintf(format, args...)})
}
