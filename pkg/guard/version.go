package guard

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// InitialVersion is the version of a freshly created row.
const InitialVersion int64 = 1

// Expected is the version a caller last observed for the row it mutates.
// Create marks that the caller observed no row at all; it is sent on the wire
// as version 1.
type Expected struct {
	Version int64
	Create  bool
}

// Expect builds an expectation for an existing row at version.
func Expect(version int64) Expected {
	return Expected{Version: version}
}

// ExpectCreate builds an expectation that the row does not exist yet.
func ExpectCreate() Expected {
	return Expected{Version: InitialVersion, Create: true}
}

// Validate rejects versions that can never match a stored row.
func (e Expected) Validate() error {
	if e.Version < InitialVersion {
		return Validation("version", "", "version must be a positive integer, got %d", e.Version)
	}
	if e.Create && e.Version != InitialVersion {
		return Validation("version", "", "create requires version %d, got %d", InitialVersion, e.Version)
	}
	return nil
}

// Next returns the version a successful mutation produces.
func (e Expected) Next() int64 {
	if e.Create {
		return InitialVersion
	}
	return e.Version + 1
}

func (e Expected) String() string {
	if e.Create {
		return "create"
	}
	return strconv.FormatInt(e.Version, 10)
}

// ParseVersion converts a decoded request field into a version. Missing,
// fractional, non-numeric and non-positive inputs are rejected as validation
// errors.
func ParseVersion(raw any) (int64, error) {
	var version int64
	switch v := raw.(type) {
	case nil:
		return 0, Validation("version", "", "version is required")
	case int:
		version = int64(v)
	case int32:
		version = int64(v)
	case int64:
		version = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, Validation("version", "", "version must be an integer, got %v", v)
		}
		version = int64(v)
	case json.Number:
		parsed, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, Validation("version", "", "version must be an integer, got %q", v.String())
		}
		version = parsed
	default:
		return 0, Validation("version", "", "version must be an integer, got %s", fmt.Sprintf("%T", raw))
	}
	if version < InitialVersion {
		return 0, Validation("version", "", "version must be a positive integer, got %d", version)
	}
	return version, nil
}

// CheckVersion parses the version and create flag of a mutating request into
// an expectation. It never touches storage.
func CheckVersion(raw any, create bool) (Expected, error) {
	version, err := ParseVersion(raw)
	if err != nil {
		return Expected{}, err
	}
	expected := Expected{Version: version, Create: create}
	if err := expected.Validate(); err != nil {
		return Expected{}, err
	}
	return expected, nil
}
