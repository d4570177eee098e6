package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/cobranzas-siat/internal/application/facturacion"
	"github.com/tu-usuario/cobranzas-siat/internal/application/regularizacion"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	EmisionUC   *facturacion.EmisionUseCase
	Agregador   *regularizacion.Agregador
	Programador *regularizacion.Programador
	Documentos  repository.DocumentoFiscalRepository
	Intentos    repository.IntentoRegularizacionRepository
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Emisión de documentos fiscales
	documentos := api.Group("/documentos")
	facturacionHandler := NewFacturacionHandler(deps.EmisionUC, deps.Documentos)
	documentos.Post("/", facturacionHandler.Emitir)
	documentos.Get("/:id", facturacionHandler.GetByID)

	// Regularización de contingencia (operador)
	reg := api.Group("/regularizacion")
	regHandler := NewRegularizacionHandler(deps.Agregador, deps.Programador, deps.Intentos)
	reg.Get("/pendientes", regHandler.Pendientes)
	reg.Post("/ejecutar", regHandler.Ejecutar)
	reg.Get("/intentos", regHandler.Intentos)
}
