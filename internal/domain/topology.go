package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Topology is the shared TopoJSON resource used to draw the state map.
type Topology struct {
	Type    string          `json:"type"`
	Objects []string        `json:"objects"`
	Raw     json.RawMessage `json:"-"`
}

// NormalizeTopology validates a TopoJSON document and keeps its bytes.
func NormalizeTopology(data []byte) (Topology, error) {
	var doc struct {
		Type    string                     `json:"type"`
		Objects map[string]json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	if doc.Type != "Topology" {
		return Topology{}, fmt.Errorf("decode topology: unexpected type %q", doc.Type)
	}
	if len(doc.Objects) == 0 {
		return Topology{}, errors.New("decode topology: no objects")
	}

	objects := make([]string, 0, len(doc.Objects))
	for name := range doc.Objects {
		objects = append(objects, name)
	}
	slices.Sort(objects)

	return Topology{Type: doc.Type, Objects: objects, Raw: slices.Clone(json.RawMessage(data))}, nil
}
