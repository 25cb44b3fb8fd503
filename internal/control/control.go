// Package control parses and emits package and domain metadata: the
// current JSON control format and, for domains not yet upgraded, the
// legacy colon-separated format.
package control

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// Control is a flat string-keyed metadata record, JSON on disk.
type Control struct {
	d map[string]interface{}
}

// New returns an empty Control.
func New() *Control {
	return &Control{d: map[string]interface{}{}}
}

// Load reads path as JSON. A missing file yields an empty Control,
// matching JsonFile.load's "only update if it exists" contract.
func Load(path string) (*Control, error) {
	c := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "reading control %s", path)
	}
	if err := json.Unmarshal(data, &c.d); err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindValidation, err, "parsing control %s", path)
	}
	return c, nil
}

// Get returns the value for k, or def if absent.
func (c *Control) Get(k string, def interface{}) interface{} {
	if v, ok := c.d[k]; ok {
		return v
	}
	return def
}

// GetString is Get with a string result, using "" as the default when
// the key is absent or not a string.
func (c *Control) GetString(k string) string {
	v, _ := c.d[k].(string)
	return v
}

// Set assigns k to v.
func (c *Control) Set(k string, v interface{}) {
	c.d[k] = v
}

// All returns the underlying key/value map. Callers must not mutate
// the result's structure in place; use Set.
func (c *Control) All() map[string]interface{} {
	return c.d
}

// Dump writes the control as pretty, sorted-key JSON to path, indent 2.
func (c *Control) Dump(path string) error {
	data, err := c.Dumps()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "writing control %s", path)
	}
	return nil
}

// Dumps renders the control as a pretty-printed, sorted-key JSON
// string. encoding/json already emits map[string]interface{} keys in
// sorted order, so MarshalIndent alone satisfies the sort_keys=true
// contract of the original JsonFile.dumps.
func (c *Control) Dumps() (string, error) {
	data, err := json.MarshalIndent(c.d, "", "  ")
	if err != nil {
		return "", ssmerr.Wrap(ssmerr.KindValidation, err, "marshaling control")
	}
	return string(data), nil
}

// sortedKeys returns m's keys in sorted order, for callers that need a
// deterministic key order outside of Dumps.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedKeys returns the control's keys in sorted order.
func (c *Control) SortedKeys() []string {
	return sortedKeys(c.d)
}
