package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/cobranzas-siat/internal/application/dto"
	"github.com/tu-usuario/cobranzas-siat/internal/application/regularizacion"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

// RegularizacionHandler expone al operador la contingencia acumulada, el
// disparo manual de una pasada y la bitácora de intentos.
type RegularizacionHandler struct {
	agregador   *regularizacion.Agregador
	programador *regularizacion.Programador
	intentos    repository.IntentoRegularizacionRepository
}

// NewRegularizacionHandler construye el handler.
func NewRegularizacionHandler(
	agregador *regularizacion.Agregador,
	programador *regularizacion.Programador,
	intentos repository.IntentoRegularizacionRepository,
) *RegularizacionHandler {
	return &RegularizacionHandler{agregador: agregador, programador: programador, intentos: intentos}
}

// Pendientes lista los documentos en contingencia con su marca de plazo.
// GET /api/regularizacion/pendientes?sucursal=&puntoVenta=
func (h *RegularizacionHandler) Pendientes(c *fiber.Ctx) error {
	var sucursal, puntoVenta *int
	if v := c.QueryInt("sucursal", -1); v >= 0 {
		sucursal = &v
	}
	if v := c.QueryInt("puntoVenta", -1); v >= 0 {
		puntoVenta = &v
	}
	pendientes, err := h.agregador.ListarPendientes(c.Context(), sucursal, puntoVenta)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.DocumentoPendienteResponse, 0, len(pendientes))
	for _, p := range pendientes {
		out = append(out, dto.DocumentoPendienteResponse{
			Documento: dto.ToDocumentoResponse(p.Documento),
			Vencido:   p.Vencido,
		})
	}
	return c.JSON(out)
}

// Ejecutar dispara una pasada de regularización y devuelve su resumen.
// POST /api/regularizacion/ejecutar
func (h *RegularizacionHandler) Ejecutar(c *fiber.Ctx) error {
	resumen, err := h.programador.Pasada(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := dto.PasadaResponse{
		Paquetes:   resumen.Paquetes,
		EjecutadaA: resumen.EjecutadaA,
	}
	for _, r := range resumen.Intentos {
		ir := dto.ResultadoIntentoResponse{
			PaqueteRef:      r.PaqueteRef,
			Exito:           r.Exito,
			Pendiente:       r.Pendiente,
			CodigoRecepcion: r.CodigoRecepcion,
			Regularizados:   r.Regularizados,
			Rechazados:      r.Rechazados,
		}
		if r.Error != nil {
			ir.Error = r.Error.Error()
		}
		out.Intentos = append(out.Intentos, ir)
	}
	return c.JSON(out)
}

// Intentos devuelve la bitácora de intentos, del más reciente al más viejo.
// GET /api/regularizacion/intentos?limit=
func (h *RegularizacionHandler) Intentos(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "parámetros inválidos"})
	}
	page.DefaultPage()
	intentos, err := h.intentos.List(c.Context(), page.Limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.IntentoResponse, 0, len(intentos))
	for _, i := range intentos {
		out = append(out, dto.ToIntentoResponse(i))
	}
	return c.JSON(out)
}
