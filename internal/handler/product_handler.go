package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/service"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

type ProductHandler struct {
	service service.ProductService
	logger  *logger.Logger
}

func NewProductHandler(service service.ProductService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  log,
	}
}

func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	if c.Request().ContentLength == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "Product data is required",
		})
	}

	var input service.CreateProductInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON in request body",
		})
	}

	product, err := h.service.CreateProduct(ctx, input)
	if err != nil {
		if message, ok := productErrorMessage(err); ok {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"message": message,
			})
		}
		if errors.Is(err, domain.ErrProductExists) {
			return c.JSON(http.StatusConflict, map[string]string{
				"message": "Product already exists",
			})
		}

		h.logger.Error(ctx, "Failed to create product",
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Internal server error while creating product",
		})
	}

	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) GetByID(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	product, err := h.service.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"message": "Product not found",
			})
		}

		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	products, err := h.service.ListProducts(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, products)
}

func productErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrMissingProductFields):
		return "Title, description, price, and count are required", true
	case errors.Is(err, service.ErrEmptyProductText):
		return "Title and description cannot be empty", true
	case errors.Is(err, service.ErrInvalidProductPrice):
		return "Price must be a positive number", true
	case errors.Is(err, service.ErrInvalidProductCount):
		return "Count must be a non-negative integer", true
	default:
		return "", false
	}
}
