package oidc

import (
	"encoding/json"
	"fmt"
)

// Client is a statically registered OIDC client.
type Client struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Native bool   `json:"native"`
}

// ClientRegistry resolves registered clients by id.
type ClientRegistry struct {
	clients map[string]Client
}

// ParseClientRegistry builds a registry from a JSON array of clients,
// typically supplied through configuration.
func ParseClientRegistry(data []byte) (*ClientRegistry, error) {
	var clients []Client
	if len(data) > 0 {
		if err := json.Unmarshal(data, &clients); err != nil {
			return nil, fmt.Errorf("parse client registry: %w", err)
		}
	}
	reg := &ClientRegistry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if c.ID == "" {
			return nil, fmt.Errorf("parse client registry: client with empty id")
		}
		if _, dup := reg.clients[c.ID]; dup {
			return nil, fmt.Errorf("parse client registry: duplicate client id %q", c.ID)
		}
		reg.clients[c.ID] = c
	}
	return reg, nil
}

// Lookup returns the registered client, if any.
func (r *ClientRegistry) Lookup(clientID string) (Client, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}
