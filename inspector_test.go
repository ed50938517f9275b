package topicroute

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

func TestNewView(t *testing.T) {
	tests := map[string]struct {
		payload []byte
		valid   bool
	}{
		"object":         {[]byte(`{"celsius": 21.5}`), true},
		"bare number":    {[]byte(`21.5`), true},
		"malformed":      {[]byte(`{not valid}`), false},
		"binary float64": {[]byte{0x9a, 0x99, 0x99, 0x99, 0x99, 0xa6, 0x58, 0x40}, false},
		"empty":          {[]byte{}, false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewView(nil, tt.payload)
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && err != ErrInvalidJSON {
				t.Fatalf("got %v, want ErrInvalidJSON", err)
			}
		})
	}
}

type ViewSuite struct {
	suite.Suite
	view View
}

func (s *ViewSuite) SetupTest() {
	raw := []byte(`{
		"sensor": "probe-7",
		"celsius": 21.5,
		"calibrated": true,
		"location": {"zone": "90210", "floor": 3},
		"tags": ["indoor", "hvac"],
		"error": null
	}`)

	var err error
	s.view, err = NewView(map[string]string{"zipCode": "90210", "*": "probe-7/temperature"}, raw)
	s.Require().NoError(err)
}

func TestViewSuite(t *testing.T) {
	suite.Run(t, new(ViewSuite))
}

func (s *ViewSuite) TestParam() {
	zip, ok := s.view.Param("zipCode")
	s.Require().True(ok)
	s.Assert().Equal("90210", zip)

	tail, ok := s.view.Param(CatchAllParam)
	s.Require().True(ok)
	s.Assert().Equal("probe-7/temperature", tail)

	_, ok = s.view.Param("sensor")
	s.Assert().False(ok, "payload fields are not params")
}

func (s *ViewSuite) TestHasField() {
	tests := map[string]struct {
		path   string
		exists bool
	}{
		"top level":      {"sensor", true},
		"nested":         {"location.zone", true},
		"array element":  {"tags.1", true},
		"null value":     {"error", true},
		"missing":        {"missing", false},
		"missing nested": {"location.missing", false},
		"out of range":   {"tags.5", false},
		"route param":    {"zipCode", false},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			s.Assert().Equal(tt.exists, s.view.HasField(tt.path))
		})
	}
}

func (s *ViewSuite) TestString() {
	val, ok := s.view.String("location.zone")
	s.Require().True(ok)
	s.Assert().Equal("90210", val)

	_, ok = s.view.String("celsius")
	s.Assert().False(ok, "numbers are not strings")

	_, ok = s.view.String("error")
	s.Assert().False(ok, "null is not a string")
}

func (s *ViewSuite) TestNumber() {
	val, ok := s.view.Number("celsius")
	s.Require().True(ok)
	s.Assert().InDelta(21.5, val, 1e-9)

	floor, ok := s.view.Number("location.floor")
	s.Require().True(ok)
	s.Assert().InDelta(3, floor, 1e-9)

	_, ok = s.view.Number("location.zone")
	s.Assert().False(ok, "numeric strings are not numbers")
}

func (s *ViewSuite) TestRaw() {
	val, ok := s.view.Raw("sensor")
	s.Require().True(ok)
	s.Assert().Equal(`"probe-7"`, string(val))

	val, ok = s.view.Raw("location")
	s.Require().True(ok)
	s.Assert().Equal(`{"zone": "90210", "floor": 3}`, string(val))

	_, ok = s.view.Raw("missing")
	s.Assert().False(ok)
}

func (s *ViewSuite) TestValue() {
	tests := map[string]struct {
		path string
		want any
	}{
		"string": {"sensor", "probe-7"},
		"number": {"celsius", 21.5},
		"bool":   {"calibrated", true},
		"null":   {"error", nil},
		"array":  {"tags", []any{"indoor", "hvac"}},
		"object": {"location", map[string]any{"zone": "90210", "floor": float64(3)}},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			got, ok := s.view.Value(tt.path)
			s.Require().True(ok)
			s.Assert().Equal(tt.want, got)
		})
	}

	_, ok := s.view.Value("missing")
	s.Assert().False(ok)
}

func (s *ViewSuite) TestGet() {
	s.Assert().Equal(int64(2), s.view.Get("tags.#").Int())
	s.Assert().Equal(gjson.True, s.view.Get("calibrated").Type)
	s.Assert().False(s.view.Get("missing").Exists())
}
