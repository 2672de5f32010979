package check

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCheckFailed is wrapped by every error returned from this package's checks.
var ErrCheckFailed = errors.New("check failed")

// True checks whether the condition is true. This method returns an error with the provided
// message if the check fails.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// NotEmpty checks that the string is not empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(actual != "", msgAndArgs, "expected a non-empty string")
}

// GreaterThanOrEqualTo checks whether actual >= expected.
func GreaterThanOrEqualTo(actual, expected int, msgAndArgs ...interface{}) error {
	return check(actual >= expected, msgAndArgs, "%d is less than %d", actual, expected)
}

// Contains checks whether the actual value is contained in the expected list.
func Contains(actual interface{}, expected []interface{}, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%v not in %v", actual, expected)
}

func check(condition bool, msgAndArgs []interface{}, defaultMsg string, args ...interface{}) error {
	if condition {
		return nil
	}
	err := errors.Wrapf(ErrCheckFailed, defaultMsg, args...)
	if msg := message(msgAndArgs...); msg != "" {
		return errors.Wrap(err, msg)
	}
	return err
}

func message(msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 0:
		return ""
	case len(msgAndArgs) == 1:
		return fmt.Sprintf("%v", msgAndArgs[0])
	default:
		format, ok := msgAndArgs[0].(string)
		if !ok {
			return fmt.Sprint(msgAndArgs...)
		}
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
}
