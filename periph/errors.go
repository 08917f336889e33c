package periph

import (
	"errors"
	"fmt"
)

// NotPresentError reports that a request could not complete because the
// characteristic is unknown, its parent service is missing, or the
// peripheral disconnected mid-request. Transport and ATT errors from the
// host stack are never converted into this; they pass through verbatim.
type NotPresentError struct {
	Characteristic string
}

func (e *NotPresentError) Error() string {
	if e.Characteristic == "" {
		return "peripheral not present"
	}
	return fmt.Sprintf("characteristic %s not present", e.Characteristic)
}

// IsNotPresent reports whether err is a NotPresentError.
func IsNotPresent(err error) bool {
	var npe *NotPresentError
	return errors.As(err, &npe)
}
