package repository

import (
	"context"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// FiltroDocumentos acota las consultas por estado. Sucursal y PuntoVenta son
// opcionales (nil = sin filtro).
type FiltroDocumentos struct {
	Estado     string
	Sucursal   *int
	PuntoVenta *int
}

// DocumentoFiscalRepository acceso a documentos fiscales.
type DocumentoFiscalRepository interface {
	Create(ctx context.Context, doc *entity.DocumentoFiscal) error
	Update(ctx context.Context, doc *entity.DocumentoFiscal) error
	GetByID(ctx context.Context, id string) (*entity.DocumentoFiscal, error)

	// ListByFiltro devuelve los documentos que cumplen el filtro, ordenados por
	// fecha de emisión ascendente (desempate por secuencia).
	ListByFiltro(ctx context.Context, f FiltroDocumentos) ([]*entity.DocumentoFiscal, error)

	// MaxSecuencia devuelve la secuencia más alta ya persistida para el alcance
	// (tipo, gestion, sucursal); 0 si no hay documentos.
	MaxSecuencia(ctx context.Context, tipo string, gestion, sucursal int) (int64, error)
}
