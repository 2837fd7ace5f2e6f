package tool

import (
	"fmt"
	"net/url"
	"strings"

	"hydra/internal/domain"
)

// kindError carries a sentinel for classification while keeping the
// backend's own wording as the message shown to the model.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// RequireFields checks that every named parameter of call is a non-empty
// string. All missing names are reported together.
func RequireFields(call domain.ToolCallRequest, names ...string) error {
	var missing []string
	for _, n := range names {
		if strings.TrimSpace(call.String(n)) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return newKindError(domain.ErrToolParameter, "missing parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateURL checks that value is an absolute HTTP(S) URL.
func ValidateURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return newKindError(domain.ErrToolValidation, "invalid %s: %s", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newKindError(domain.ErrToolValidation, "invalid %s: scheme must be http or https", name)
	}
	if u.Host == "" {
		return newKindError(domain.ErrToolValidation, "invalid %s: missing host", name)
	}
	return nil
}
