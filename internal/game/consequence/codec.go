package consequence

import (
	"encoding/json"
	"fmt"
)

// SaveFile is the serialized form of a playthrough: the full ordered record
// sequence plus the content version it was recorded against. Derived state is
// never saved; load replays the sequence.
type SaveFile struct {
	ContentVersion string   `json:"content_version"`
	Records        []Record `json:"records"`
}

// Marshal serializes the graph's committed sequence.
func Marshal(g *Graph) ([]byte, error) {
	save := SaveFile{
		ContentVersion: g.ContentVersion(),
		Records:        g.Records(),
	}
	data, err := json.MarshalIndent(save, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding save: %w", err)
	}
	return data, nil
}

// Unmarshal parses a save and restores it into a fresh graph built against
// the given content version and replay parameters.
//
// Postcondition: returns ErrVersionMismatch when the save was recorded
// against a different content version; no partial load occurs.
func Unmarshal(data []byte, contentVersion string, params ReplayParams) (*Graph, error) {
	var save SaveFile
	if err := json.Unmarshal(data, &save); err != nil {
		return nil, fmt.Errorf("decoding save: %w", err)
	}
	if save.ContentVersion != contentVersion {
		return nil, fmt.Errorf("%w: save is %q, content is %q",
			ErrVersionMismatch, save.ContentVersion, contentVersion)
	}

	g := NewGraph(contentVersion, params)
	g.RestoreFrom(save.Records)
	return g, nil
}
