package plugin

import (
	"fmt"
	"sync"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

var (
	registryMu          sync.RWMutex
	stageFactories      = make(map[string]StageFactory)
	dataSourceFactories = make(map[string]DataSourceFactory)
)

// RegisterStage adds a stage plugin factory for the provided plugin name.
func RegisterStage(name string, factory StageFactory) error {
	if factory == nil {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("factory is nil"))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := stageFactories[name]; exists {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("stage plugin already registered"))
	}

	stageFactories[name] = factory
	return nil
}

// NewStagePlugin constructs the named stage plugin with the given parameters.
func NewStagePlugin(name string, params map[string]any, deps Dependencies) (StagePlugin, error) {
	registryMu.RLock()
	factory, ok := stageFactories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, conveyorerrors.NewPluginError(name, fmt.Errorf("no stage plugin registered"))
	}

	return factory(params, deps)
}

// RegisterDataSource adds a data source plugin factory for the provided name.
func RegisterDataSource(name string, factory DataSourceFactory) error {
	if factory == nil {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("factory is nil"))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := dataSourceFactories[name]; exists {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("data source plugin already registered"))
	}

	dataSourceFactories[name] = factory
	return nil
}

// NewDataSourcePlugin constructs the named data source plugin.
func NewDataSourcePlugin(name string, params map[string]any, deps Dependencies) (DataSourcePlugin, error) {
	registryMu.RLock()
	factory, ok := dataSourceFactories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, conveyorerrors.NewPluginError(name, fmt.Errorf("no data source plugin registered"))
	}

	return factory(params, deps)
}

// ResetRegistry clears plugin registrations (for tests).
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	stageFactories = make(map[string]StageFactory)
	dataSourceFactories = make(map[string]DataSourceFactory)
}
