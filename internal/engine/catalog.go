package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/events"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

// RegisterDefinition validates a workflow definition and records it in the
// catalog. Registering an identical definition again is a no-op, but a
// different definition under an existing ID and version is rejected
func (e *Engine) RegisterDefinition(
	ctx context.Context, def *api.WorkflowDefinition,
) error {
	if _, err := e.graphFor(def); err != nil {
		return err
	}

	registered := false
	_, err := e.catalogExec.Exec(ctx, events.CatalogKey,
		func(st *api.CatalogState, ag *CatalogAggregator) error {
			registered = false
			if existing, ok := st.Definitions[def.ID]; ok {
				if existing.Equal(def) {
					return nil
				}
				if existing.Version == def.Version {
					return fmt.Errorf("%w: %s (version %q)",
						ErrDefinitionExists, def.ID, def.Version)
				}
			}
			registered = true
			return events.Raise(ag, api.EventTypeDefinitionRegistered,
				api.DefinitionRegisteredEvent{Definition: def},
			)
		},
	)
	if err != nil {
		return err
	}
	if registered {
		slog.Info("Workflow definition registered",
			log.WorkflowID(def.ID),
			slog.String("version", def.Version),
			slog.Int("tasks", len(def.Tasks)))
	}
	return nil
}

// GetDefinition returns the registered definition with the given ID
func (e *Engine) GetDefinition(
	ctx context.Context, id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	st, err := e.GetCatalogState(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := st.Definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// ListDefinitions returns every registered definition ordered by ID
func (e *Engine) ListDefinitions(
	ctx context.Context,
) ([]*api.WorkflowDefinition, error) {
	st, err := e.GetCatalogState(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*api.WorkflowDefinition, 0, len(st.Definitions))
	for _, def := range st.Definitions {
		res = append(res, def)
	}
	slices.SortFunc(res, func(l, r *api.WorkflowDefinition) int {
		return strings.Compare(string(l.ID), string(r.ID))
	})
	return res, nil
}

// GetCatalogState retrieves the current catalog state
func (e *Engine) GetCatalogState(
	ctx context.Context,
) (*api.CatalogState, error) {
	return e.catalogExec.Exec(ctx, events.CatalogKey,
		func(*api.CatalogState, *CatalogAggregator) error {
			return nil
		},
	)
}
