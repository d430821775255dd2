// Package web provides HTTP handlers and REST API endpoints for destination delivery.
package web

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/dukex/courier/pkg/config"
	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/dukex/courier/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	delivery  *services.Delivery
	validator *validator.Validate
	publisher eventbus.EventPublisher
	instances map[string]config.Instance
}

// NewAPIHandlers creates the handlers. publisher may be nil, in which case
// asynchronous deliveries are rejected.
func NewAPIHandlers(
	delivery *services.Delivery,
	validator *validator.Validate,
	publisher eventbus.EventPublisher,
) *APIHandlers {
	return &APIHandlers{
		delivery:  delivery,
		validator: validator,
		publisher: publisher,
		instances: map[string]config.Instance{},
	}
}

// WithInstances serves deliveries to preconfigured destination instances.
func (h *APIHandlers) WithInstances(instances map[string]config.Instance) *APIHandlers {
	if instances != nil {
		h.instances = instances
	}

	return h
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	tokensCheck, ok := h.delivery.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Courier API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Courier API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"tokens":       tokensCheck,
			"destinations": len(h.delivery.Destinations()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetDestinations(c fiber.Ctx) error {
	destinations := h.delivery.Destinations()

	response := make([]DestinationResponse, 0, len(destinations))
	for _, d := range destinations {
		response = append(response, TransformDestinationResponse(d))
	}

	return c.JSON(fiber.Map{
		"destinations": response,
		"total_count":  len(response),
	})
}

func (h *APIHandlers) GetDestination(c fiber.Ctx) error {
	d, err := h.delivery.Destination(c.Params("slug"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformDestinationResponse(d))
}

func (h *APIHandlers) Deliver(c fiber.Ctx) error {
	slug := c.Params("slug")

	var req DeliverRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Async {
		return h.enqueue(c, slug, req)
	}

	results, err := h.delivery.Deliver(c.Context(), slug, req.Event, req.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResultsResponse{Results: results})
}

func (h *APIHandlers) enqueue(c fiber.Ctx, slug string, req DeliverRequest) error {
	if h.publisher == nil {
		return badRequest(c, "Asynchronous delivery is not enabled")
	}

	if _, err := h.delivery.Destination(slug); err != nil {
		return handleServiceError(c, err)
	}

	request := events.NewDeliveryRequested(slug, req.Settings, req.Event, req.BatchKey)

	key := req.BatchKey
	if key == "" {
		key = slug
	}

	err := h.publisher.Publish(c.Context(), key, request)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(QueuedResponse{ID: request.ID})
}

func (h *APIHandlers) DeliverBatch(c fiber.Ctx) error {
	var req DeliverBatchRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.delivery.DeliverBatch(c.Context(), c.Params("slug"), req.Events, req.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResultsResponse{Results: results})
}

func (h *APIHandlers) TestAuthentication(c fiber.Ctx) error {
	var req SettingsRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.delivery.TestAuthentication(c.Context(), c.Params("slug"), req.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RefreshAccessToken(c fiber.Ctx) error {
	var req SettingsRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	tokens, err := h.delivery.RefreshAccessToken(c.Context(), c.Params("slug"), req.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	if tokens == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(tokens)
}

func (h *APIHandlers) Delete(c fiber.Ctx) error {
	var req DeleteRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.delivery.Delete(c.Context(), c.Params("slug"), req.Event, req.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) DynamicField(c fiber.Ctx) error {
	var req DynamicFieldRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	response, err := h.delivery.DynamicField(c.Context(), c.Params("slug"), c.Params("action"), c.Params("field"), protocol.DynamicFieldInput{
		Settings: req.Settings,
		Auth:     req.Auth,
		Payload:  req.Payload,
		Page:     req.Page,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(response)
}

func (h *APIHandlers) CreateAudience(c fiber.Ctx) error {
	var req CreateAudienceRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.delivery.CreateAudience(c.Context(), c.Params("slug"), destination.CreateAudienceRequest{
		Settings:         req.Settings,
		AudienceName:     req.AudienceName,
		AudienceSettings: req.AudienceSettings,
		Personas:         req.Personas,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetAudience(c fiber.Ctx) error {
	var req GetAudienceRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.delivery.GetAudience(c.Context(), c.Params("slug"), destination.GetAudienceRequest{
		Settings:         req.Settings,
		ExternalID:       c.Params("externalId"),
		AudienceSettings: req.AudienceSettings,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	ids := slices.Sorted(maps.Keys(h.instances))

	response := make([]InstanceResponse, 0, len(ids))
	for _, id := range ids {
		response = append(response, InstanceResponse{ID: id, Destination: h.instances[id].Destination})
	}

	return c.JSON(fiber.Map{
		"instances":   response,
		"total_count": len(response),
	})
}

func (h *APIHandlers) DeliverToInstance(c fiber.Ctx) error {
	instance, ok := h.instances[c.Params("id")]
	if !ok {
		return notFound(c, "instance_not_found", "Instance not found")
	}

	var req InstanceEventRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.delivery.Deliver(c.Context(), instance.Destination, req.Event, instance.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResultsResponse{Results: results})
}

func (h *APIHandlers) DeliverBatchToInstance(c fiber.Ctx) error {
	instance, ok := h.instances[c.Params("id")]
	if !ok {
		return notFound(c, "instance_not_found", "Instance not found")
	}

	var req InstanceBatchRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.delivery.DeliverBatch(c.Context(), instance.Destination, req.Events, instance.Settings)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResultsResponse{Results: results})
}

func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	return h.validator.Struct(req)
}

// Register mounts every destination route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	d := router.Group("/destinations")
	d.Get("/", h.GetDestinations)
	d.Get("/:slug", h.GetDestination)
	d.Post("/:slug/event", h.Deliver)
	d.Post("/:slug/batch", h.DeliverBatch)
	d.Post("/:slug/authentication", h.TestAuthentication)
	d.Post("/:slug/refresh", h.RefreshAccessToken)
	d.Post("/:slug/delete", h.Delete)
	d.Post("/:slug/actions/:action/fields/:field", h.DynamicField)
	d.Post("/:slug/audiences", h.CreateAudience)
	d.Post("/:slug/audiences/:externalId", h.GetAudience)

	i := router.Group("/instances")
	i.Get("/", h.GetInstances)
	i.Post("/:id/event", h.DeliverToInstance)
	i.Post("/:id/batch", h.DeliverBatchToInstance)
}
