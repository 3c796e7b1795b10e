package events

import (
	"github.com/kode4food/timebox"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

const CatalogPrefix = "catalog"

var (
	CatalogKey = timebox.NewAggregateID(CatalogPrefix)

	CatalogAppliers = makeCatalogAppliers()
)

// NewCatalogState creates an empty catalog state with initialized maps
func NewCatalogState() *api.CatalogState {
	return &api.CatalogState{
		Definitions: map[api.WorkflowID]*api.WorkflowDefinition{},
	}
}

func makeCatalogAppliers() timebox.Appliers[*api.CatalogState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.CatalogState]{
		api.EventTypeDefinitionRegistered: timebox.MakeApplier(
			definitionRegistered,
		),
	})
}

func definitionRegistered(
	st *api.CatalogState, ev *timebox.Event,
	data api.DefinitionRegisteredEvent,
) *api.CatalogState {
	return st.
		SetDefinition(data.Definition.ID, data.Definition).
		SetLastUpdated(ev.Timestamp)
}
