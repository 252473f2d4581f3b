package graph

import (
	"encoding/json"
	"fmt"

	"depsweep/internal/identity"
	"depsweep/internal/ingest/brew"
	"depsweep/internal/ingest/npm"
	"depsweep/internal/ingest/pip"
	"depsweep/internal/storage"
)

// DecodeMetadata projects a node's raw metadata into the typed form of its
// ecosystem. The decoder is selected by ecosystem ID; there is no
// speculative multi-format parsing. Unknown ecosystems return the raw
// message unchanged
func DecodeMetadata(node *storage.PackageNode) (interface{}, error) {
	if len(node.Metadata) == 0 {
		return nil, nil
	}

	switch node.Identity.Ecosystem {
	case identity.EcosystemBrew:
		var meta brew.Metadata
		if err := json.Unmarshal(node.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode brew metadata for %s: %w", node.Identity.Name, err)
		}
		return &meta, nil

	case identity.EcosystemNpm:
		var meta npm.Metadata
		if err := json.Unmarshal(node.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode npm metadata for %s: %w", node.Identity.Name, err)
		}
		return &meta, nil

	case identity.EcosystemPip:
		var meta pip.Metadata
		if err := json.Unmarshal(node.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode pip metadata for %s: %w", node.Identity.Name, err)
		}
		return &meta, nil

	default:
		return node.Metadata, nil
	}
}
