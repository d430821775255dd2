package webhook

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/request"
	"github.com/dukex/courier/pkg/schema"
)

var methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch}

// Send posts the mapped payload to a URL. A batch sends one JSON array per
// distinct URL, method and headers, in order of first appearance.
type Send struct{}

var (
	_ protocol.BatchAction        = Send{}
	_ protocol.DynamicFieldAction = Send{}
)

func (Send) Title() string {
	return "Send"
}

func (Send) Description() string {
	return "Send an HTTP request to the configured URL."
}

func (Send) Fields() map[string]schema.Field {
	return map[string]schema.Field{
		"url": {
			Label:    "URL",
			Type:     schema.TypeString,
			Required: true,
		},
		"method": {
			Label:   "Method",
			Type:    schema.TypeString,
			Choices: methods,
			Default: http.MethodPost,
			Dynamic: true,
		},
		"headers": {
			Label: "Headers",
			Type:  schema.TypeObject,
		},
		"data": {
			Label: "Data",
			Type:  schema.TypeObject,
		},
	}
}

func (s Send) Perform(ctx context.Context, client *request.Client, input protocol.ExecuteInput) (any, error) {
	target := parseTarget(input.Payload)

	input.Logger.DebugContext(ctx, "sending webhook", "url", target.url, "method", target.method)

	resp, err := client.With(request.Options{Headers: target.headers}).Do(ctx, target.method, target.url, requestBody(input.Payload))
	if err != nil {
		return nil, err
	}

	return resp.Data(), nil
}

func (s Send) PerformBatch(ctx context.Context, client *request.Client, input protocol.BatchExecuteInput) ([]models.MultiStatusNode, error) {
	nodes := make([]models.MultiStatusNode, len(input.Payloads))
	secret, _ := input.Settings[sharedSecretKey].(string)

	for _, g := range groupByTarget(input.Payloads) {
		headers := maps.Clone(g.target.headers)
		if secret != "" {
			headers[SignatureHeader] = Sign(secret, g.data)
		}

		input.Logger.DebugContext(ctx, "sending webhook batch", "url", g.target.url, "method", g.target.method, "size", len(g.data))

		var node models.MultiStatusNode

		resp, err := client.With(request.Options{Headers: headers}).Do(ctx, g.target.method, g.target.url, g.data)
		if err != nil {
			var httpErr *integration.HTTPError
			if !errors.As(err, &httpErr) {
				return nil, err
			}

			node = models.MultiStatusNode{
				Status:        httpErr.Status,
				ErrorType:     http.StatusText(httpErr.Status),
				ErrorMessage:  httpErr.Body,
				ErrorReporter: integration.ReporterDestination,
			}
		} else {
			node = models.MultiStatusNode{Status: resp.Status, Body: resp.Data()}
		}

		for _, i := range g.indices {
			nodes[i] = node
		}
	}

	return nodes, nil
}

func (Send) DynamicField(
	_ context.Context,
	_ *request.Client,
	field string,
	_ protocol.DynamicFieldInput,
) (models.DynamicFieldResponse, error) {
	if field != "method" {
		return models.DynamicFieldResponse{
			Choices: []models.DynamicFieldChoice{},
			Error: &models.ResultError{
				Message: fmt.Sprintf("No dynamic field named %s found.", field),
				Status:  http.StatusNotFound,
				Code:    "404",
			},
		}, nil
	}

	choices := make([]models.DynamicFieldChoice, len(methods))
	for i, method := range methods {
		choices[i] = models.DynamicFieldChoice{Label: method, Value: method}
	}

	return models.DynamicFieldResponse{Choices: choices}, nil
}

type target struct {
	url     string
	method  string
	headers map[string]string
}

func parseTarget(payload map[string]any) target {
	t := target{method: http.MethodPost, headers: map[string]string{}}

	t.url, _ = payload["url"].(string)

	if method, ok := payload["method"].(string); ok && method != "" {
		t.method = strings.ToUpper(method)
	}

	if headers, ok := payload["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				t.headers[key] = s
			}
		}
	}

	return t
}

func (t target) key() string {
	var b strings.Builder

	b.WriteString(t.method)
	b.WriteByte(' ')
	b.WriteString(t.url)

	for _, name := range slices.Sorted(maps.Keys(t.headers)) {
		b.WriteByte('\n')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(t.headers[name])
	}

	return b.String()
}

type targetGroup struct {
	target  target
	indices []int
	data    []any
}

func groupByTarget(payloads []map[string]any) []*targetGroup {
	var groups []*targetGroup

	byKey := map[string]*targetGroup{}

	for i, payload := range payloads {
		t := parseTarget(payload)

		g, ok := byKey[t.key()]
		if !ok {
			g = &targetGroup{target: t}
			byKey[t.key()] = g
			groups = append(groups, g)
		}

		g.indices = append(g.indices, i)
		g.data = append(g.data, requestBody(payload))
	}

	return groups
}
