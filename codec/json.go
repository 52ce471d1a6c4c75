package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Manifests are small and written once per commit, so portability and
// debuggability win over raw speed here. If you need custom encoding,
// implement Codec and pass it to Open.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// NOTE: This affects newly-created manifests. Existing files are
// self-describing (they record the codec name) and are opened by selecting
// the appropriate codec by name.
var Default Codec = JSON{}
