package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tu-usuario/cobranzas-siat/internal/application/facturacion"
	"github.com/tu-usuario/cobranzas-siat/internal/application/regularizacion"
	"github.com/tu-usuario/cobranzas-siat/internal/infrastructure/postgres"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
	httpRouter "github.com/tu-usuario/cobranzas-siat/internal/interfaces/http"
	"github.com/tu-usuario/cobranzas-siat/pkg/config"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	documentoRepo := postgres.NewDocumentoFiscalRepository(pool)
	eventoRepo := postgres.NewEventoSignificativoRepository(pool)
	intentoRepo := postgres.NewIntentoRegularizacionRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	autoridad := infrasiat.NewClienteSOAP(infrasiat.Config{
		EndpointBase:    cfg.SIAT.EndpointBase,
		Token:           cfg.SIAT.Token,
		NIT:             cfg.SIAT.NIT,
		CodigoSistema:   cfg.SIAT.CodigoSistema,
		Ambiente:        cfg.SIAT.Ambiente,
		Modalidad:       cfg.SIAT.Modalidad,
		DocumentoSector: cfg.SIAT.DocumentoSector,
		Sucursal:        cfg.SIAT.Sucursal,
		PuntoVenta:      cfg.SIAT.PuntoVenta,
	})

	emisionUC := facturacion.NewEmisionUseCase(txRunner, autoridad, facturacion.Config{
		NIT:             cfg.SIAT.NIT,
		Modalidad:       cfg.SIAT.Modalidad,
		DocumentoSector: cfg.SIAT.DocumentoSector,
	}, log)

	agregador := regularizacion.NewAgregador(documentoRepo)
	registrador := regularizacion.NewRegistradorEventos(eventoRepo, autoridad, log)
	constructor := infrasiat.NewConstructorPaquetes(cfg.SIAT.NIT, cfg.SIAT.RazonSocial)
	orquestador := regularizacion.NewOrquestador(
		documentoRepo, intentoRepo, registrador, autoridad, constructor,
		regularizacion.ConfigOrquestador{
			NIT:              cfg.SIAT.NIT,
			Modalidad:        cfg.SIAT.Modalidad,
			DocumentoSector:  cfg.SIAT.DocumentoSector,
			TipoDocumento:    1,
			EsperaValidacion: cfg.SIAT.EsperaValidacion,
		}, log)

	// Barrido periódico de contingencias; la misma pasada se puede disparar a
	// mano vía POST /api/regularizacion/ejecutar.
	programador := regularizacion.NewProgramador(agregador, orquestador, cfg.SIAT.IntervaloProgramador, log)
	go programador.Ejecutar(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Cobranzas SIAT API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		EmisionUC:   emisionUC,
		Agregador:   agregador,
		Programador: programador,
		Documentos:  documentoRepo,
		Intentos:    intentoRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
