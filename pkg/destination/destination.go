package destination

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/otelhelper"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/registry"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInvalidDefinition indicates a destination definition that cannot be wired.
	ErrInvalidDefinition = errors.New("invalid destination definition")
)

// Dependencies are the process-wide collaborators of a destination.
type Dependencies struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// Destination dispatches events to the actions of one definition.
type Destination struct {
	definition        Definition
	actions           *registry.Registry[protocol.Action]
	payloadValidators map[string]*schema.Validator
	settingsValidator *schema.Validator
	audienceValidator *schema.Validator
	httpClient        *http.Client
	tracer            trace.Tracer
	logger            *slog.Logger
}

// New wires a definition. Action slugs and field contracts are validated here,
// so an invalid definition never reaches event delivery.
func New(def Definition, deps Dependencies) (*Destination, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	if def.Slug == "" {
		def.Slug = slugify(def.Name)
	}

	if _, err := registry.ParseSlug(def.Slug); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if def.Mode == "" {
		def.Mode = ModeCloud
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "destination", "destination", def.Name)

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otelhelper.Tracer("courier/destination")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	d := &Destination{
		definition:        def,
		actions:           registry.New[protocol.Action](logger),
		payloadValidators: make(map[string]*schema.Validator, len(def.Actions)),
		httpClient:        httpClient,
		tracer:            tracer,
		logger:            logger,
	}

	for slug, action := range def.Actions {
		if err := d.actions.Register(slug, action); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}

		validator, err := schema.Compile(action.Fields())
		if err != nil {
			return nil, fmt.Errorf("%w: action %s: %w", ErrInvalidDefinition, slug, err)
		}

		d.payloadValidators[slug] = validator
	}

	if def.Authentication != nil && len(def.Authentication.Fields) > 0 {
		validator, err := schema.Compile(def.Authentication.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: authentication fields: %w", ErrInvalidDefinition, err)
		}

		d.settingsValidator = validator
	}

	if len(def.AudienceFields) > 0 {
		validator, err := schema.Compile(def.AudienceFields)
		if err != nil {
			return nil, fmt.Errorf("%w: audience fields: %w", ErrInvalidDefinition, err)
		}

		d.audienceValidator = validator
	}

	return d, nil
}

// MustNew is like New but panics on error.
func MustNew(def Definition, deps Dependencies) *Destination {
	d, err := New(def, deps)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Destination) Name() string {
	return d.definition.Name
}

func (d *Destination) Slug() string {
	return d.definition.Slug
}

func (d *Destination) Definition() Definition {
	return d.definition
}

// Actions returns the registered action slugs.
func (d *Destination) Actions() []string {
	return d.actions.Slugs()
}

// Action resolves an action by slug.
//
// nolint:ireturn // actions are polymorphic
func (d *Destination) Action(slug string) (protocol.Action, bool) {
	return d.actions.Resolve(slug)
}

func (d *Destination) scheme() Scheme {
	if d.definition.Authentication == nil {
		return ""
	}

	return d.definition.Authentication.Scheme
}

// ValidateSettings checks projected settings against the authentication fields.
func (d *Destination) ValidateSettings(settings models.Settings) error {
	return d.settingsValidator.Validate(map[string]any(settings))
}

func (d *Destination) requestClient(settings models.Settings, auth *models.AuthTokens, payload any) *request.Client {
	var options request.Options

	if d.definition.ExtendRequest != nil {
		options = d.definition.ExtendRequest(ExtendRequestInput{
			Settings: settings,
			Auth:     auth,
			Payload:  payload,
		})
	}

	return request.NewClient(d.httpClient, options, d.logger)
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+'a'-'A')
		case len(out) > 0 && out[len(out)-1] != '-':
			out = append(out, '-')
		}
	}

	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}

	return "actions-" + string(out)
}
