package regularizacion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
	pkgsiat "github.com/tu-usuario/cobranzas-siat/pkg/siat"
)

// Descripciones estándar de los motivos de evento significativo.
var descripcionesEvento = map[string]string{
	"1": "Corte del servicio de Internet",
	"2": "Inaccesibilidad al servicio web de la Administración Tributaria",
	"3": "Ingreso a zonas sin Internet por despliegue de punto de venta",
	"4": "Venta en lugares sin Internet",
	"5": "Corte de energía eléctrica",
	"6": "Virus informático o falla de software",
	"7": "Cambio de infraestructura de sistema o falla de hardware",
}

// RegistradorEventos registra eventos significativos ante la Autoridad, a lo
// más una vez por contexto (sucursal, puntoVenta). El repositorio aporta la
// idempotencia durable; el cache en memoria evita reconsultas dentro de la
// misma pasada.
type RegistradorEventos struct {
	eventos   repository.EventoSignificativoRepository
	autoridad infrasiat.ClienteAutoridad
	log       *logger.Logger

	mu    sync.Mutex
	cache map[string]string // contexto -> código de recepción
}

// NewRegistradorEventos construye el registrador.
func NewRegistradorEventos(
	eventos repository.EventoSignificativoRepository,
	autoridad infrasiat.ClienteAutoridad,
	log *logger.Logger,
) *RegistradorEventos {
	return &RegistradorEventos{
		eventos:   eventos,
		autoridad: autoridad,
		log:       log,
		cache:     make(map[string]string),
	}
}

// AsegurarEvento devuelve el código de recepción del evento del contexto,
// registrándolo ante la Autoridad solo si aún no existe.
//
// El orden del protocolo importa: primero se obtiene un CUFD *fresco* y recién
// entonces se registra el evento; registrar contra un código diario viejo es
// rechazado por la Autoridad. La ventana de vigencia del evento es el rango
// [min(emisión), max(emisión)] de los documentos que cubre: representa el
// período real de contingencia, no el momento de la recuperación.
func (r *RegistradorEventos) AsegurarEvento(ctx context.Context, cuis string, p *PaqueteContingencia) (string, error) {
	contexto := fmt.Sprintf("%d:%d", p.Sucursal, p.PuntoVenta)

	// El lock cubre la operación completa: dos paquetes del mismo contexto en
	// paralelo no deben registrar el evento dos veces.
	r.mu.Lock()
	defer r.mu.Unlock()

	if codigo, ok := r.cache[contexto]; ok {
		return codigo, nil
	}

	existente, err := r.eventos.GetByContexto(ctx, p.Sucursal, p.PuntoVenta)
	if err != nil {
		return "", fmt.Errorf("consultar evento existente: %w", err)
	}
	if existente != nil {
		r.cache[contexto] = existente.CodigoRecepcion
		return existente.CodigoRecepcion, nil
	}

	cufdFresco, err := r.autoridad.ObtenerCUFD(ctx, true)
	if err != nil {
		return "", fmt.Errorf("obtener CUFD fresco para el evento: %w", err)
	}

	inicio, fin := ventanaEmision(p.Documentos)
	descripcion := descripcionesEvento[p.CodigoEvento]
	if descripcion == "" {
		descripcion = "Evento significativo " + p.CodigoEvento
	}

	codigo, err := r.autoridad.RegistrarEvento(ctx, &infrasiat.SolicitudRegistroEvento{
		CUIS:         cuis,
		CUFD:         cufdFresco.Codigo,
		CodigoEvento: p.CodigoEvento,
		Descripcion:  pkgsiat.NormalizarTexto(descripcion),
		Inicio:       inicio,
		Fin:          fin,
		Sucursal:     p.Sucursal,
		PuntoVenta:   p.PuntoVenta,
	})
	if err != nil {
		return "", fmt.Errorf("registrar evento %s: %w", p.CodigoEvento, err)
	}

	if err := r.eventos.Create(ctx, &entity.EventoSignificativo{
		Sucursal:        p.Sucursal,
		PuntoVenta:      p.PuntoVenta,
		CodigoEvento:    p.CodigoEvento,
		Descripcion:     descripcion,
		VigenciaInicio:  inicio,
		VigenciaFin:     fin,
		CodigoRecepcion: codigo,
	}); err != nil {
		// El evento quedó registrado en la Autoridad; perder la fila local solo
		// cuesta un registro duplicado en una corrida futura.
		r.log.Error().Err(err).Str("contexto", contexto).Msg("no se pudo persistir el evento registrado")
	}

	r.cache[contexto] = codigo
	r.log.Info().
		Str("contexto", contexto).
		Str("evento", p.CodigoEvento).
		Str("recepcion", codigo).
		Time("inicio", inicio).
		Time("fin", fin).
		Msg("evento significativo registrado")
	return codigo, nil
}

// ventanaEmision devuelve [min, max] de las fechas de emisión.
func ventanaEmision(docs []*entity.DocumentoFiscal) (time.Time, time.Time) {
	inicio, fin := docs[0].FechaEmision, docs[0].FechaEmision
	for _, d := range docs[1:] {
		if d.FechaEmision.Before(inicio) {
			inicio = d.FechaEmision
		}
		if d.FechaEmision.After(fin) {
			fin = d.FechaEmision
		}
	}
	return inicio, fin
}
