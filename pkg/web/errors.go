package web

import (
	"errors"
	"net/http"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps delivery errors to problem responses. Classified
// integration errors keep their status and code; a raw third party rejection
// is reported as a bad gateway.
func handleServiceError(c fiber.Ctx, err error) error {
	var notFoundErr *services.NotFoundError

	var integrationErr *integration.Error

	var httpErr *integration.HTTPError

	switch {
	case services.IsNotFound(err):
		problemType := "not_found"
		if errors.As(err, &notFoundErr) {
			problemType = notFoundErr.Code()
		}

		return notFound(c, problemType, err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.As(err, &integrationErr):
		status := integration.StatusCode(err)
		if http.StatusText(status) == "" {
			status = http.StatusInternalServerError
		}

		problem := problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(integration.Code(err)).
			WithDetail(err.Error())

		return c.Status(status).JSON(problem)

	case errors.As(err, &httpErr):
		problem := problems.NewStatusProblem(http.StatusBadGateway).
			WithInstance(c.Path()).
			WithType(integration.Code(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		return internalError(c, err)
	}
}

var errInvalidJSON = errors.New("invalid JSON format")
