package auth

import (
	"fmt"
	"os"

	"github.com/upb/inventory-authz/utils"
	"gopkg.in/yaml.v3"
)

// RoutePolicy is the on-disk form of a service's route table.
//
//	public:
//	  exact: ["/healthz"]
//	  prefixes: ["/auth/me"]
//	routes:
//	  - pattern: /productos
//	    resource: products
//	  - pattern: /auth/execute
//	    method: POST
//	    resource: auth
//	    action: execute
type RoutePolicy struct {
	Public PublicRoutes `yaml:"public"`
	Routes []RouteRule  `yaml:"routes" validate:"required,min=1,dive"`
}

// LoadRoutePolicy reads and validates a YAML route policy. It is called once
// at startup; the result is never reloaded.
func LoadRoutePolicy(path string) (*RoutePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route policy: %w", err)
	}
	return ParseRoutePolicy(data)
}

// ParseRoutePolicy decodes and validates a YAML route policy.
func ParseRoutePolicy(data []byte) (*RoutePolicy, error) {
	var policy RoutePolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to decode route policy: %w", err)
	}
	if err := utils.ValidateStruct(&policy); err != nil {
		return nil, fmt.Errorf("invalid route policy: %w", err)
	}
	for _, prefix := range policy.Public.Prefixes {
		if NormalizeRoute(prefix) == "/" {
			return nil, fmt.Errorf("invalid route policy: public prefix %q matches every route", prefix)
		}
	}
	// resource/action membership is checked when the table is compiled
	if _, err := NewRouteTable(policy.Routes); err != nil {
		return nil, fmt.Errorf("invalid route policy: %w", err)
	}
	return &policy, nil
}
