package flagsync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/flagsync/flagsync/engine"
)

// Context carries per-call evaluation attributes. Unset fields inherit the
// client's static context (AppName, Environment); CurrentTime is stamped
// with the current UTC time when zero. Properties may hold arbitrary
// values; they are coerced to strings before reaching the engine.
type Context struct {
	UserID        string
	SessionID     string
	RemoteAddress string
	Environment   string
	AppName       string
	CurrentTime   time.Time
	Properties    map[string]any
}

// normalizeContext merges the static client context into ctx and produces
// the fully stringified form the engine consumes.
func (c *Client) normalizeContext(ctx Context) engine.Context {
	out := engine.Context{
		UserID:        ctx.UserID,
		SessionID:     ctx.SessionID,
		RemoteAddress: ctx.RemoteAddress,
		Environment:   ctx.Environment,
		AppName:       ctx.AppName,
	}
	if out.Environment == "" {
		out.Environment = c.cfg.Environment
	}
	if out.AppName == "" {
		out.AppName = c.cfg.AppName
	}

	when := ctx.CurrentTime
	if when.IsZero() {
		when = time.Now().UTC()
	}
	out.CurrentTime = when.Format(time.RFC3339)

	if len(ctx.Properties) > 0 {
		props := make(map[string]string, len(ctx.Properties))
		for k, v := range ctx.Properties {
			props[k] = coerceContextValue(v)
		}
		out.Properties = props
	}
	return out
}

// coerceContextValue renders any property value as a string the engine can
// match against.
func coerceContextValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
