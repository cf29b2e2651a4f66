// Package errors turns errors into short error_class tags for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/target/runboard/internal/errors"
)

// Classify returns "" for nil, the code of an application error, "timeout" or "canceled" for
// context errors, and otherwise the dynamic type of the innermost wrapped error, such as
// "net_operror" for a *net.OpError.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	for next := goerrors.Unwrap(err); next != nil; next = goerrors.Unwrap(next) {
		err = next
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	name = strings.ToLower(strings.ReplaceAll(name, ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
