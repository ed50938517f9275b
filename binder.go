package topicroute

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Bind resolves one formal parameter.
//
// FromPayload parameters are decoded from the whole payload with codec.
// FromService parameters are resolved by type. FromPayloadField parameters
// are read from the JSON payload through the context's View. Every other
// parameter is looked up by name in route and converted to its Kind.
// Optional parameters without a value bind their Default.
//
// A panic in a resolver, codec, validator or converter is returned as an
// error of the same kind as the failure it replaces.
func Bind(ctx context.Context, p Param, route map[string]string, cc *ControllerContext, services ServiceResolver, codec Codec) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, bindPanic(p, r)
		}
	}()

	switch p.Source {
	case FromPayload:
		v, err := p.decode(codec, cc.Message.Payload)
		if err != nil {
			return nil, mismatch(p.Name, codec.Name()+" payload", p.Type.String(), err)
		}
		return v, nil

	case FromService:
		v, err := services.ResolveService(ctx, p.Type)
		if err != nil {
			return nil, &activationError{what: fmt.Sprintf("resolve service %v for parameter %q", p.Type, p.Name), err: err}
		}
		return v, nil

	case FromPayloadField:
		return bindField(p, cc)
	}

	raw, ok := route[p.Name]
	if !ok {
		if p.Optional {
			return p.Default, nil
		}
		return nil, unresolved(p.Name)
	}
	return convertString(p, raw)
}

func bindPanic(p Param, r any) error {
	cause := fmt.Errorf("panic: %v", r)
	if p.Source == FromService {
		return &activationError{what: fmt.Sprintf("resolve service %v for parameter %q", p.Type, p.Name), err: cause}
	}
	to := p.Kind.String()
	if p.Type != nil {
		to = p.Type.String()
	}
	return mismatch(p.Name, p.Source.String(), to, cause)
}

func bindField(p Param, cc *ControllerContext) (any, error) {
	view, err := cc.View()
	if err != nil {
		return nil, mismatch(p.Name, "payload", p.Kind.String(), err)
	}

	if p.Kind == KindBytes {
		if b, ok := view.Raw(p.Path); ok {
			return b, nil
		}
	} else if v, ok := view.Value(p.Path); ok && v != nil {
		return convertValue(p, v)
	}

	if p.Optional {
		return p.Default, nil
	}
	return nil, unresolved(p.Name)
}

// bindArgs binds every parameter of h. The first failure aborts binding.
func bindArgs(ctx context.Context, h *Handler, cc *ControllerContext, services ServiceResolver, codec Codec) (Args, error) {
	args := newArgs(h.Params)
	for i, p := range h.Params {
		v, err := Bind(ctx, p, cc.Route.Params, cc, services, codec)
		if err != nil {
			return Args{}, err
		}
		args.values[i] = v
	}
	return args, nil
}

// convertString converts a route value to the parameter's Kind.
func convertString(p Param, s string) (any, error) {
	var (
		v   any
		err error
	)

	switch p.Kind {
	case KindAny, KindString:
		return s, nil
	case KindBytes:
		return []byte(s), nil
	case KindInt:
		v, err = strconv.Atoi(s)
	case KindInt64:
		v, err = strconv.ParseInt(s, 10, 64)
	case KindUint:
		var u uint64
		u, err = strconv.ParseUint(s, 10, strconv.IntSize)
		v = uint(u)
	case KindFloat64:
		v, err = strconv.ParseFloat(s, 64)
	case KindBool:
		v, err = strconv.ParseBool(s)
	case KindDuration:
		v, err = time.ParseDuration(s)
	case KindCustom:
		v, err = p.Convert(s)
	default:
		err = fmt.Errorf("unsupported kind %v", p.Kind)
	}

	if err != nil {
		return nil, mismatch(p.Name, "string", p.Kind.String(), err)
	}
	return v, nil
}

// convertValue converts a decoded JSON value to the parameter's Kind.
func convertValue(p Param, v any) (any, error) {
	switch x := v.(type) {
	case string:
		return convertString(p, x)

	case float64:
		switch p.Kind {
		case KindAny, KindFloat64:
			return x, nil
		case KindString:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case KindInt, KindInt64, KindUint:
			if x != math.Trunc(x) {
				return nil, mismatch(p.Name, "number", p.Kind.String(), fmt.Errorf("%v is not an integer", x))
			}
			switch {
			case p.Kind == KindInt64:
				if x < math.MinInt64 || x >= -math.MinInt64 {
					return nil, outOfRange(p, x)
				}
				return int64(x), nil
			case p.Kind == KindInt:
				if x < math.MinInt || x >= -math.MinInt {
					return nil, outOfRange(p, x)
				}
				return int(x), nil
			case x < 0:
				return nil, mismatch(p.Name, "number", p.Kind.String(), fmt.Errorf("%v is negative", x))
			case x >= math.MaxUint+1:
				return nil, outOfRange(p, x)
			default:
				return uint(x), nil
			}
		}

	case bool:
		switch p.Kind {
		case KindAny, KindBool:
			return x, nil
		case KindString:
			return strconv.FormatBool(x), nil
		}

	default:
		if p.Kind == KindAny {
			return x, nil
		}
	}

	return nil, mismatch(p.Name, fmt.Sprintf("%T", v), p.Kind.String(), nil)
}

func outOfRange(p Param, x float64) error {
	return mismatch(p.Name, "number", p.Kind.String(), fmt.Errorf("%v out of range", x))
}
