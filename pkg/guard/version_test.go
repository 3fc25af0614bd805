package guard_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/goliatone/go-settings/pkg/guard"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want int64
		ok   bool
	}{
		{"float", float64(3), 3, true},
		{"int", 2, 2, true},
		{"int64", int64(9), 9, true},
		{"json number", json.Number("4"), 4, true},
		{"missing", nil, 0, false},
		{"zero", float64(0), 0, false},
		{"negative", -1, 0, false},
		{"fraction", 1.5, 0, false},
		{"nan", math.NaN(), 0, false},
		{"string", "1", 0, false},
		{"json fraction", json.Number("1.0"), 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := guard.ParseVersion(tc.raw)
			if !tc.ok {
				if !errors.Is(err, guard.ErrValidation) {
					t.Fatalf("expected validation error, got %d %v", got, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %d, got %d (%v)", tc.want, got, err)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	expected, err := guard.CheckVersion(float64(1), true)
	if err != nil || !expected.Create || expected.Next() != guard.InitialVersion {
		t.Fatalf("create at 1: %+v %v", expected, err)
	}
	if _, err := guard.CheckVersion(float64(2), true); guard.CodeOf(err) != guard.CodeValidation {
		t.Fatalf("create above 1 must be rejected, got %v", err)
	}
	expected, err = guard.CheckVersion(float64(5), false)
	if err != nil || expected.Create || expected.Next() != 6 {
		t.Fatalf("update at 5: %+v %v", expected, err)
	}
	if expected.String() != "5" || guard.ExpectCreate().String() != "create" {
		t.Fatalf("unexpected strings %q %q", expected.String(), guard.ExpectCreate().String())
	}
}
