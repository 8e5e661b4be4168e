// Package registry maps node type strings to their handlers.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"

	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownNodeType is returned when no handler serves a node type.
var ErrUnknownNodeType = errors.New("unknown node type")

// NodeType is the catalog entry published for a registered handler.
type NodeType struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// ConfigError lists the schema violations of a node configuration.
type ConfigError struct {
	NodeType string
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s config: %s", e.NodeType, strings.Join(e.Problems, "; "))
}

// Registry is populated at process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	logger   *slog.Logger
	handlers map[string]protocol.Handler
	schemas  map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log,
		handlers: make(map[string]protocol.Handler),
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a handler. It panics on duplicates or invalid schemas since registration
// only happens during startup.
func (r *Registry) Register(handler protocol.Handler) {
	nodeType := handler.Type()
	if _, exists := r.handlers[nodeType]; exists {
		panic(fmt.Sprintf("node type %q already registered", nodeType))
	}

	if describer, ok := handler.(protocol.Describer); ok && describer.Schema() != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(describer.Schema()))
		if err != nil {
			panic(fmt.Sprintf("invalid schema for node type %q: %v", nodeType, err))
		}

		r.schemas[nodeType] = schema
	}

	r.handlers[nodeType] = handler

	r.logger.Debug("Registered node handler", "type", nodeType)
}

// Get returns the handler for a node type.
//
//nolint:ireturn // handlers are polymorphic by design
func (r *Registry) Get(nodeType string) (protocol.Handler, bool) {
	handler, ok := r.handlers[nodeType]

	return handler, ok
}

// Types returns all registered node types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for nodeType := range r.handlers {
		types = append(types, nodeType)
	}

	slices.Sort(types)

	return types
}

// Catalog returns metadata for every registered node type, sorted by type.
func (r *Registry) Catalog() []NodeType {
	catalog := make([]NodeType, 0, len(r.handlers))

	for _, nodeType := range r.Types() {
		entry := NodeType{Type: nodeType, Name: nodeType}

		if describer, ok := r.handlers[nodeType].(protocol.Describer); ok {
			entry.Name = describer.Name()
			entry.Description = describer.Description()
			entry.Schema = describer.Schema()
		}

		catalog = append(catalog, entry)
	}

	return catalog
}

// ValidateConfig checks a node config against the handler's JSON schema and its own Validate.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	handler, ok := r.handlers[nodeType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	if schema, ok := r.schemas[nodeType]; ok {
		result, err := schema.Validate(gojsonschema.NewGoLoader(config))
		if err != nil {
			return fmt.Errorf("failed to validate %s config: %w", nodeType, err)
		}

		if !result.Valid() {
			problems := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				problems = append(problems, desc.String())
			}

			return &ConfigError{NodeType: nodeType, Problems: problems}
		}
	}

	return handler.Validate(config)
}

// HealthCheck reports whether any handler is registered.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.handlers) == 0 {
		return "No node handlers registered", false
	}

	return fmt.Sprintf("%d node handlers registered", len(r.handlers)), true
}

// LoadHandlerPlugins opens every shared object under <pluginsPath>/handlers and returns the
// value each exports under the "Handler" symbol.
func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.Handler, error) {
	return loadPlugin[protocol.Handler](r.logger, pluginsPath, "Handler")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			// plugin.Lookup returns a pointer to package-level variables.
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: %s has unexpected type %T", p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded handler plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
