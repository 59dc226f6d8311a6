package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", isClock)
	_ = v.RegisterValidation("host", isHost)
	v.RegisterStructValidation(crossFieldRules, Config{})
	return v
}

// FieldError is one failed rule, named by its dotted field path.
type FieldError struct {
	Field   string
	Message string
	Value   any
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors lists every rule a configuration breaks.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:")
	for _, fe := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// ValidateStruct runs the configuration rules over v, which may be any
// section of Config.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := make(ValidationErrors, 0, len(ves))
	for _, fe := range ves {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Message: describe(fe),
			Value:   fe.Value(),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + p
	case "min", "gte":
		return "must be at least " + p
	case "max", "lte":
		return "must be at most " + p
	case "gt":
		return "must be greater than " + p
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(p, " ", ", ")
	case "datetime":
		return "must match the layout " + p
	case "port":
		return "must be a port between 1 and 65535"
	case "file":
		return "file does not exist"
	case "url":
		return "must be an absolute URL"
	case "unique":
		return "must not repeat values"
	case "excludesall":
		return fmt.Sprintf("must not contain %q", p)
	case "startswith":
		return "must start with " + p
	case "clock":
		return "must be a time of day (HH:MM)"
	case "host":
		return "must be a hostname or IP address"
	case "ltfield":
		return "must be less than " + p
	case "after":
		return "must be later than " + p
	case "differs":
		return "must differ from " + p
	default:
		return "fails " + fe.Tag()
	}
}

func isClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// isHost accepts an empty value, IP literals and RFC 1123 hostnames.
func isHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if r != '-' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				return false
			}
		}
	}
	return true
}

// crossFieldRules checks constraints between sections.
func crossFieldRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)

	start, errStart := time.Parse("15:04", c.Simulation.DayStart)
	end, errEnd := time.Parse("15:04", c.Simulation.DayEnd)
	if errStart == nil && errEnd == nil && !end.After(start) {
		sl.ReportError(c.Simulation.DayEnd, "Simulation.DayEnd", "DayEnd", "after", "Simulation.DayStart")
	}

	if g := c.Server.GRPC; g.Enabled {
		if g.Port == c.Server.Port {
			sl.ReportError(g.Port, "Server.GRPC.Port", "Port", "differs", "Server.Port")
		}
		if ka := g.Keepalive; ka.Time > 0 && ka.Timeout >= ka.Time {
			sl.ReportError(ka.Timeout, "Server.GRPC.Keepalive.Timeout", "Timeout", "ltfield", "Server.GRPC.Keepalive.Time")
		}
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		sl.ReportError(c.Metrics.Port, "Metrics.Port", "Port", "differs", "Server.Port")
	}

	switch c.Storage.Type {
	case "badger":
		if c.Storage.Badger.Path == "" {
			sl.ReportError(c.Storage.Badger.Path, "Storage.Badger.Path", "Path", "required_if", "Storage.Type badger")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			sl.ReportError(c.Storage.SQLite.Path, "Storage.SQLite.Path", "Path", "required_if", "Storage.Type sqlite")
		}
	}
	if (c.Storage.Type == "redis" || c.EventBus.RedisRelay) && c.Storage.Redis.Address == "" {
		sl.ReportError(c.Storage.Redis.Address, "Storage.Redis.Address", "Address", "required_if", "redis storage or relay")
	}
}
