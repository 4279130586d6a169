//go:build property

package registry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowmail/flowmail/internal/types"
)

// TestCreateDependencyProperties validates the idempotence contract for
// arbitrary component/data-type vocabularies.
func TestCreateDependencyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(8642)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	identifier := gen.RegexMatch(`[a-z][a-z0-9-]{0,15}`)

	properties.Property("repeated link requests return one instance", prop.ForAll(
		func(providerID, consumerID, dataType string, repeats int) bool {
			if providerID == consumerID {
				return true
			}
			if repeats < 1 || repeats > 10 {
				return true
			}

			r, _ := newTestRegistry()
			registerPair(r, providerID, consumerID, dataType)

			first := r.CreateDependency(providerID, consumerID, dataType)
			if first == nil {
				return false
			}
			for i := 0; i < repeats; i++ {
				again := r.CreateDependency(providerID, consumerID, dataType)
				if again == nil || again.ID != first.ID {
					return false
				}
			}

			return r.DependencyCount() == 1 &&
				len(r.GetDependenciesByProvider(providerID)) == 1
		},
		identifier, identifier, identifier, gen.IntRange(1, 10),
	))

	properties.Property("cascade removes exactly the dependent instances", prop.ForAll(
		func(consumerCount int) bool {
			if consumerCount < 1 || consumerCount > 20 {
				return true
			}

			r, _ := newTestRegistry()
			providerDef := r.RegisterDefinition(&types.DependencyDefinition{
				ComponentID: "hub", DataType: "email", Role: types.RoleProvider,
			})
			for i := 0; i < consumerCount; i++ {
				consumerID := "consumer-" + string(rune('a'+i))
				r.RegisterDefinition(&types.DependencyDefinition{
					ComponentID: consumerID, DataType: "email", Role: types.RoleConsumer,
				})
				if r.CreateDependency("hub", consumerID, "email") == nil {
					return false
				}
			}

			r.RemoveDefinition(providerDef)

			return r.DependencyCount() == 0
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
