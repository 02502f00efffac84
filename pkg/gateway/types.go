package gateway

// Consumer is a gateway consumer record.
type Consumer struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	CustomID string   `json:"custom_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Name references a service or route by name.
type Name struct {
	Name string `json:"name"`
}

// PluginConfig holds the config body for the plugin kinds the workflow
// manages: rate-limiting windows and ip-restriction allow/deny lists.
type PluginConfig struct {
	Second *int     `json:"second,omitempty"`
	Minute *int     `json:"minute,omitempty"`
	Hour   *int     `json:"hour,omitempty"`
	Day    *int     `json:"day,omitempty"`
	Month  *int     `json:"month,omitempty"`
	Year   *int     `json:"year,omitempty"`
	Allow  []string `json:"allow,omitempty"`
	Deny   []string `json:"deny,omitempty"`
}

// ConsumerPlugin is a plugin scoped to a consumer, optionally narrowed to a
// single service or route.
type ConsumerPlugin struct {
	ID      string       `json:"id,omitempty"`
	Name    string       `json:"name"`
	Service *Name        `json:"service,omitempty"`
	Route   *Name        `json:"route,omitempty"`
	Tags    []string     `json:"tags,omitempty"`
	Config  PluginConfig `json:"config"`
}

// ACLEntry is a consumer's membership in an ACL group.
type ACLEntry struct {
	ID    string `json:"id"`
	Group string `json:"group"`
}

// KeyAuthCredential is an api-key credential attached to a consumer.
type KeyAuthCredential struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

func (p ConsumerPlugin) scope() string {
	switch {
	case p.Route != nil:
		return "route:" + p.Route.Name
	case p.Service != nil:
		return "service:" + p.Service.Name
	default:
		return "global"
	}
}
