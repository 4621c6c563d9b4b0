package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"dhe/internal/keyboard"
	"dhe/internal/logging"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "dhe_commands.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString(schemaURL, schemaJSON)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a decoded command file against the embedded JSON
// schema. doc may come from any of the supported decoders; it is
// normalised through encoding/json first so TOML and YAML value types
// validate the same way.
func ValidateDocument(doc any) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// ValidateConfig performs the semantic checks the schema cannot express.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateCommands(c.Commands)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if c.Paste.RestoreDelay < 0 {
		errs = append(errs, ValidationError{Field: "paste.restore_delay", Message: "must not be negative"})
	}
	if c.Starter.Delay < 0 {
		errs = append(errs, ValidationError{Field: "starter.delay", Message: "must not be negative"})
	}

	errs = append(errs, validateTranslate(&c.Translate)...)

	if strings.TrimSpace(c.GUI.Command) == "" {
		errs = append(errs, ValidationError{Field: "gui.command", Message: "must not be empty"})
	}
	if c.Daemon.HistoryLimit < 0 {
		errs = append(errs, ValidationError{Field: "daemon.history_limit", Message: "must not be negative"})
	}
	if _, err := c.ReferenceKey(); err != nil {
		errs = append(errs, ValidationError{Field: "keyboard.reference_key", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCommands(cmds []Command) ValidationErrors {
	var errs ValidationErrors
	for i, cmd := range cmds {
		field := fmt.Sprintf("commands[%d]", i)
		if strings.TrimSpace(cmd.Name) == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "must not be empty"})
			continue
		}
		switch cmd.Handler {
		case HandlerBashStarter:
		case HandlerActionListener:
			if !slices.Contains(KnownActions, cmd.Name) {
				errs = append(errs, ValidationError{
					Field:   field + ".name",
					Message: fmt.Sprintf("unknown action %q", cmd.Name),
				})
			}
			if len(cmd.Args) == 0 {
				errs = append(errs, ValidationError{Field: field + ".args", Message: "empty list of keys"})
				continue
			}
			if _, err := keyboard.ParseKeys(cmd.Args); err != nil {
				errs = append(errs, ValidationError{Field: field + ".args", Message: err.Error()})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".handler",
				Message: fmt.Sprintf("unknown handler %q", cmd.Handler),
			})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{Field: "logging.format", Message: err.Error()})
	}
	switch l.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{Field: "logging.output", Message: fmt.Sprintf("unknown output %q", l.Output)})
	}
	return errs
}

func validateTranslate(t *TranslateConfig) ValidationErrors {
	var errs ValidationErrors
	u, err := url.Parse(t.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{Field: "translate.endpoint", Message: "must be an http(s) URL"})
	}
	if t.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "translate.timeout", Message: "must be positive"})
	}
	pairs := []struct {
		field, target, alt string
	}{
		{"translate.notify", t.NotifyTarget, t.NotifyAlternative},
		{"translate.paste", t.PasteTarget, t.PasteAlternative},
	}
	for _, p := range pairs {
		if p.target == "" || p.alt == "" {
			errs = append(errs, ValidationError{Field: p.field + "_target", Message: "target and alternative are required"})
			continue
		}
		if p.target == p.alt {
			errs = append(errs, ValidationError{Field: p.field + "_alternative", Message: "must differ from target"})
		}
	}
	return errs
}
