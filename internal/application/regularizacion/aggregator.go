package regularizacion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

// DocumentoPendiente es un documento en contingencia con su marca de plazo.
// Los vencidos se listan igual, solo marcados: la Autoridad puede rechazarlos
// por exceder la ventana, y ese rechazo es un resultado esperado.
type DocumentoPendiente struct {
	Documento *entity.DocumentoFiscal
	Vencido   bool
}

// PaqueteContingencia es la agrupación efímera que se envía como unidad. No se
// persiste como entidad: su huella durable es el IntentoRegularizacion que
// produce. El orden de Documentos es posicional y debe preservarse hasta el
// archivo enviado, porque la Autoridad correlaciona observaciones por índice.
type PaqueteContingencia struct {
	CUFD         string
	CodigoEvento string
	Sucursal     int
	PuntoVenta   int
	Documentos   []*entity.DocumentoFiscal
}

// Ref identifica el paquete en la bitácora de intentos.
func (p *PaqueteContingencia) Ref() string {
	evento := p.CodigoEvento
	if evento == "" {
		evento = "sin-evento"
	}
	return fmt.Sprintf("%s|%s", p.CUFD, evento)
}

// Agregador enumera documentos en contingencia y los agrupa en paquetes.
type Agregador struct {
	docs  repository.DocumentoFiscalRepository
	reloj func() time.Time
}

// NewAgregador construye el agregador.
func NewAgregador(docs repository.DocumentoFiscalRepository) *Agregador {
	return &Agregador{docs: docs, reloj: time.Now}
}

// ListarPendientes devuelve los documentos en CONTINGENCIA con su marca de
// vencimiento, opcionalmente filtrados por sucursal y punto de venta.
func (a *Agregador) ListarPendientes(ctx context.Context, sucursal, puntoVenta *int) ([]DocumentoPendiente, error) {
	docs, err := a.docs.ListByFiltro(ctx, repository.FiltroDocumentos{
		Estado:     entity.EstadoContingencia,
		Sucursal:   sucursal,
		PuntoVenta: puntoVenta,
	})
	if err != nil {
		return nil, fmt.Errorf("listar contingencias: %w", err)
	}
	ahora := a.reloj()
	out := make([]DocumentoPendiente, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentoPendiente{Documento: d, Vencido: d.Vencido(ahora)})
	}
	return out, nil
}

// Agrupar particiona los documentos por (cufd, codigoEvento). Un cambio en
// cualquiera de las dos claves fuerza paquete nuevo, incluso bajo la misma
// sucursal y punto de venta. Dentro de cada paquete se preserva el orden de
// emisión, con desempate por secuencia.
func Agrupar(docs []*entity.DocumentoFiscal) []*PaqueteContingencia {
	ordenados := make([]*entity.DocumentoFiscal, len(docs))
	copy(ordenados, docs)
	sort.SliceStable(ordenados, func(i, j int) bool {
		if !ordenados[i].FechaEmision.Equal(ordenados[j].FechaEmision) {
			return ordenados[i].FechaEmision.Before(ordenados[j].FechaEmision)
		}
		return ordenados[i].Secuencia < ordenados[j].Secuencia
	})

	type clave struct{ cufd, evento string }
	porClave := make(map[clave]*PaqueteContingencia)
	var paquetes []*PaqueteContingencia
	for _, d := range ordenados {
		k := clave{cufd: d.CUFD, evento: d.CodigoEvento}
		p, ok := porClave[k]
		if !ok {
			p = &PaqueteContingencia{
				CUFD:         d.CUFD,
				CodigoEvento: d.CodigoEvento,
				Sucursal:     d.Sucursal,
				PuntoVenta:   d.PuntoVenta,
			}
			porClave[k] = p
			paquetes = append(paquetes, p)
		}
		p.Documentos = append(p.Documentos, d)
	}
	return paquetes
}

// AgruparRevalidacion particiona documentos PENDIENTE por (cufd, código de
// recepción del paquete) para la reconsulta de validación sin reenvío.
func AgruparRevalidacion(docs []*entity.DocumentoFiscal) []*PaqueteRevalidacion {
	type clave struct{ cufd, recepcion string }
	porClave := make(map[clave]*PaqueteRevalidacion)
	var paquetes []*PaqueteRevalidacion
	for _, d := range docs {
		if d.CodigoRecepcionPaquete == "" {
			continue // sin código de recepción no hay nada que consultar
		}
		k := clave{cufd: d.CUFD, recepcion: d.CodigoRecepcionPaquete}
		p, ok := porClave[k]
		if !ok {
			p = &PaqueteRevalidacion{
				CUFD:            d.CUFD,
				CodigoRecepcion: d.CodigoRecepcionPaquete,
				Sucursal:        d.Sucursal,
				PuntoVenta:      d.PuntoVenta,
			}
			porClave[k] = p
			paquetes = append(paquetes, p)
		}
		p.Documentos = append(p.Documentos, d)
	}
	return paquetes
}

// PaqueteRevalidacion agrupa documentos ya enviados que esperan validación.
type PaqueteRevalidacion struct {
	CUFD            string
	CodigoRecepcion string
	Sucursal        int
	PuntoVenta      int
	Documentos      []*entity.DocumentoFiscal
}

// Ref identifica el paquete de revalidación en la bitácora.
func (p *PaqueteRevalidacion) Ref() string {
	return fmt.Sprintf("%s|revalidacion|%s", p.CUFD, p.CodigoRecepcion)
}
