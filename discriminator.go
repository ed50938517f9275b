package topicroute

import "slices"

// Discriminator is a cheap predicate over a message View. A handler's Guard
// must match before a controller is activated; a message that fails the
// guard is rejected without invoking the handler.
type Discriminator interface {
	Match(v View) bool
}

// DiscriminatorFunc adapts a function to the Discriminator interface.
type DiscriminatorFunc func(v View) bool

// Match implements Discriminator.
func (f DiscriminatorFunc) Match(v View) bool { return f(v) }

// HasFields matches payloads where every path exists.
func HasFields(paths ...string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range paths {
			if !v.HasField(p) {
				return false
			}
		}
		return true
	})
}

// FieldEquals matches payloads whose string at path equals value.
func FieldEquals(path, value string) Discriminator {
	return FieldIn(path, value)
}

// FieldIn matches payloads whose string at path is one of values.
func FieldIn(path string, values ...string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.String(path)
		return ok && slices.Contains(values, s)
	})
}

// FieldBetween matches payloads with a number at path in [lo, hi].
func FieldBetween(path string, lo, hi float64) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		n, ok := v.Number(path)
		return ok && n >= lo && n <= hi
	})
}

// ParamEquals matches messages whose topic captured value for the named
// route parameter.
func ParamEquals(name, value string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.Param(name)
		return ok && s == value
	})
}

// And matches when every discriminator matches. An empty And matches.
func And(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if !d.Match(v) {
				return false
			}
		}
		return true
	})
}

// Or matches when any discriminator matches. An empty Or never matches.
func Or(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		return slices.ContainsFunc(ds, func(d Discriminator) bool { return d.Match(v) })
	})
}

// Not inverts d.
func Not(d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool { return !d.Match(v) })
}
