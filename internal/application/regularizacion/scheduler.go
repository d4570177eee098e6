package regularizacion

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
)

// maxPaquetesEnVuelo acota los envíos simultáneos contra la Autoridad.
const maxPaquetesEnVuelo = 4

// ResumenPasada es el agregado de una pasada completa del programador.
type ResumenPasada struct {
	Paquetes   int
	Intentos   []*ResultadoIntento
	EjecutadaA time.Time
}

// Programador ejecuta pasadas periódicas de regularización: enumera la
// contingencia acumulada, la agrupa en paquetes y los procesa en paralelo.
// Los documentos PENDIENTE de pasadas anteriores se revalidan sin reenvío.
type Programador struct {
	agregador   *Agregador
	orquestador *Orquestador
	intervalo   time.Duration
	log         *logger.Logger
	reloj       func() time.Time
}

// NewProgramador construye el programador.
func NewProgramador(agregador *Agregador, orquestador *Orquestador, intervalo time.Duration, log *logger.Logger) *Programador {
	return &Programador{
		agregador:   agregador,
		orquestador: orquestador,
		intervalo:   intervalo,
		log:         log,
		reloj:       time.Now,
	}
}

// Ejecutar corre pasadas hasta que el contexto se cancele. Una pasada fallida
// no detiene el ciclo: la contingencia que quedó se recoge en la siguiente.
func (pr *Programador) Ejecutar(ctx context.Context) {
	ticker := time.NewTicker(pr.intervalo)
	defer ticker.Stop()

	pr.log.Info().Dur("intervalo", pr.intervalo).Msg("programador de regularización iniciado")
	for {
		select {
		case <-ctx.Done():
			pr.log.Info().Msg("programador de regularización detenido")
			return
		case <-ticker.C:
			if _, err := pr.Pasada(ctx); err != nil && !errors.Is(err, context.Canceled) {
				pr.log.Error().Err(err).Msg("pasada de regularización con errores")
			}
		}
	}
}

// Pasada ejecuta una pasada completa: primero revalida lo PENDIENTE, luego
// agrupa y envía la contingencia. También la invoca el disparo manual del
// operador vía HTTP.
func (pr *Programador) Pasada(ctx context.Context) (*ResumenPasada, error) {
	resumen := &ResumenPasada{EjecutadaA: pr.reloj()}

	pendientes, err := pr.agregador.docs.ListByFiltro(ctx, repository.FiltroDocumentos{Estado: entity.EstadoPendiente})
	if err != nil {
		return nil, err
	}
	for _, p := range AgruparRevalidacion(pendientes) {
		resumen.Intentos = append(resumen.Intentos, pr.orquestador.Revalidar(ctx, p))
	}

	enContingencia, err := pr.agregador.ListarPendientes(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]*entity.DocumentoFiscal, 0, len(enContingencia))
	for _, d := range enContingencia {
		if d.Vencido {
			pr.log.Warn().
				Str("documento", d.Documento.ID).
				Int64("secuencia", d.Documento.Secuencia).
				Time("plazo", d.Documento.PlazoRegularizacion()).
				Msg("documento en contingencia fuera de plazo; se envía igual")
		}
		docs = append(docs, d.Documento)
	}

	paquetes := Agrupar(docs)
	resumen.Paquetes = len(paquetes) + len(AgruparRevalidacion(pendientes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPaquetesEnVuelo)
	resultados := make([]*ResultadoIntento, len(paquetes))
	for i, p := range paquetes {
		i, p := i, p
		g.Go(func() error {
			resultados[i] = pr.orquestador.Regularizar(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resumen, err
	}
	resumen.Intentos = append(resumen.Intentos, resultados...)

	var exitos, fallas int
	for _, r := range resumen.Intentos {
		if r.Exito {
			exitos++
		} else if r.Error != nil {
			fallas++
		}
	}
	pr.log.Info().
		Int("paquetes", resumen.Paquetes).
		Int("exitos", exitos).
		Int("fallas", fallas).
		Msg("pasada de regularización completada")
	return resumen, nil
}
