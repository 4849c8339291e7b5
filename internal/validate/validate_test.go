package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type sample struct {
	Concurrency int           `env:"SAMPLE_CONCURRENCY" validate:"min=1,max=100"`
	Timeout     time.Duration `env:"SAMPLE_TIMEOUT" validate:"gt=0"`
	Name        string        `validate:"required"`
}

func TestStruct(t *testing.T) {
	testCases := []struct {
		name      string
		val       sample
		expFields []string
	}{
		{
			name: "valid",
			val:  sample{Concurrency: 5, Timeout: time.Second, Name: "batch"},
		},
		{
			name:      "env names reported",
			val:       sample{Concurrency: 0, Timeout: 0, Name: "batch"},
			expFields: []string{"SAMPLE_CONCURRENCY", "SAMPLE_TIMEOUT"},
		},
		{
			name:      "field name fallback",
			val:       sample{Concurrency: 1, Timeout: time.Second},
			expFields: []string{"Name"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Struct(tc.val)
			if tc.expFields == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %T: %v", err, err)
			}
			if diff := cmp.Diff(tc.expFields, fe.Fields()); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
			if fe.Error() == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}
