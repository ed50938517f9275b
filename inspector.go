package topicroute

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a payload is inspected as JSON but is not.
var ErrInvalidJSON = errors.New("invalid JSON")

// View is a read-only look at one routed message: the parameters captured
// from its topic and the fields of its JSON payload. Guards and
// payload-field parameters read through it.
//
// Paths use gjson syntax ("location.zone", "tags.0", "readings.#").
type View struct {
	params map[string]string
	raw    []byte
}

// NewView validates payload as JSON and returns a View over it and the
// route parameters.
func NewView(params map[string]string, payload []byte) (View, error) {
	if !gjson.ValidBytes(payload) {
		return View{}, ErrInvalidJSON
	}
	return View{params: params, raw: payload}, nil
}

// Param returns a route parameter captured from the topic.
func (v View) Param(name string) (string, bool) {
	s, ok := v.params[name]
	return s, ok
}

// Get returns the gjson result at path. Use Exists to test for presence.
func (v View) Get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

// HasField reports whether path exists. A JSON null exists.
func (v View) HasField(path string) bool {
	return v.Get(path).Exists()
}

// String returns the string at path. Other JSON types report false.
func (v View) String(path string) (string, bool) {
	r := v.Get(path)
	if r.Type != gjson.String {
		return "", false
	}
	return r.Str, true
}

// Number returns the number at path. Other JSON types report false.
func (v View) Number(path string) (float64, bool) {
	r := v.Get(path)
	if r.Type != gjson.Number {
		return 0, false
	}
	return r.Num, true
}

// Raw returns the JSON text at path, quotes included for strings.
func (v View) Raw(path string) ([]byte, bool) {
	r := v.Get(path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

// Value decodes the value at path to string, float64, bool, nil,
// map[string]any or []any.
func (v View) Value(path string) (any, bool) {
	r := v.Get(path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}
