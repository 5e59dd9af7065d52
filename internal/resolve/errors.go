package resolve

import "fmt"

// ResolutionError reports a schema document that cannot be turned into a
// graph: malformed JSON, a dangling or unsupported $ref, an unknown type.
type ResolutionError struct {
	// Path is the JSON pointer of the offending schema in the document.
	Path   string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Path, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
