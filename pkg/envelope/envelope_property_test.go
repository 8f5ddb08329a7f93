package envelope

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPartitionForProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("partition is stable for a given key", prop.ForAll(
		func(key string, n int) bool {
			return PartitionFor(key, n) == PartitionFor(key, n)
		},
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.Property("partition is within range", prop.ForAll(
		func(key string, n int) bool {
			p := PartitionFor(key, n)
			return p >= 0 && p < n
		},
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

func TestDeterministicEventIDProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("same identity yields same id", prop.ForAll(
		func(corr, doc string) bool {
			a, err1 := DeterministicEventID(TypeESGMetricExtracted,
				map[string]string{"correlation_id": corr, "doc_id": doc})
			b, err2 := DeterministicEventID(TypeESGMetricExtracted,
				map[string]string{"doc_id": doc, "correlation_id": corr})
			return err1 == nil && err2 == nil && a == b
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("different doc yields different id", prop.ForAll(
		func(corr, doc string) bool {
			a, _ := DeterministicEventID(TypeESGMetricExtracted,
				map[string]string{"correlation_id": corr, "doc_id": doc})
			b, _ := DeterministicEventID(TypeESGMetricExtracted,
				map[string]string{"correlation_id": corr, "doc_id": doc + "x"})
			return a != b
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
