package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/cobranzas-siat/internal/application/dto"
	"github.com/tu-usuario/cobranzas-siat/internal/application/facturacion"
	"github.com/tu-usuario/cobranzas-siat/internal/domain"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

// FacturacionHandler maneja las peticiones HTTP de emisión de documentos.
type FacturacionHandler struct {
	uc   *facturacion.EmisionUseCase
	docs repository.DocumentoFiscalRepository
}

// NewFacturacionHandler construye el handler.
func NewFacturacionHandler(uc *facturacion.EmisionUseCase, docs repository.DocumentoFiscalRepository) *FacturacionHandler {
	return &FacturacionHandler{uc: uc, docs: docs}
}

// Emitir emite un documento fiscal con la siguiente secuencia de su alcance.
// POST /api/documentos
func (h *FacturacionHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirDocumentoRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.uc.Emitir(c.Context(), facturacion.SolicitudEmision{
		Tipo:         in.Tipo,
		Sucursal:     in.Sucursal,
		PuntoVenta:   in.PuntoVenta,
		Monto:        in.Monto,
		TipoEmision:  in.TipoEmision,
		CAFC:         in.CAFC,
		Contingencia: in.Contingencia,
		FechaEmision: in.FechaEmision,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos de emisión inválidos"})
		}
		if errors.Is(err, domain.ErrDuplicate) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: "secuencia ya asignada"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ToDocumentoResponse(doc))
}

// GetByID obtiene un documento fiscal.
// GET /api/documentos/:id
func (h *FacturacionHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	doc, err := h.docs.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	}
	return c.JSON(dto.ToDocumentoResponse(doc))
}
