package store

// Route sends rows with a given name to a dedicated table.
type Route struct {
	// Name is the row name to match (e.g., "orders").
	Name string

	// TableName is the DynamoDB table receiving those rows.
	TableName string
}

// Registry maps row names to tables. Rows whose name has no route go to
// Config.RowTable.
type Registry struct {
	routes []Route
	byName map[string]Route
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routes: []Route{},
		byName: make(map[string]Route),
	}
}

// Register adds a route. A later route for the same name replaces the earlier.
func (r *Registry) Register(route Route) {
	if _, ok := r.byName[route.Name]; ok {
		for i := range r.routes {
			if r.routes[i].Name == route.Name {
				r.routes[i] = route
			}
		}
	} else {
		r.routes = append(r.routes, route)
	}
	r.byName[route.Name] = route
}

// TableFor returns the table for rows named name, or fallback.
func (r *Registry) TableFor(name, fallback string) string {
	if r == nil {
		return fallback
	}
	if route, ok := r.byName[name]; ok && route.TableName != "" {
		return route.TableName
	}
	return fallback
}

// AllRoutes returns all registered routes in registration order. A nil
// Registry has none.
func (r *Registry) AllRoutes() []Route {
	if r == nil {
		return nil
	}
	return r.routes
}

// HasRoute returns true if rows named name have a dedicated table.
func (r *Registry) HasRoute(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[name]
	return ok
}
