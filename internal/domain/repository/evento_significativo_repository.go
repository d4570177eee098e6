package repository

import (
	"context"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// EventoSignificativoRepository acceso a eventos significativos registrados.
type EventoSignificativoRepository interface {
	Create(ctx context.Context, ev *entity.EventoSignificativo) error

	// GetByContexto devuelve el evento ya registrado para (sucursal, puntoVenta),
	// o nil, nil si no existe. Es la base de la idempotencia del registrador.
	GetByContexto(ctx context.Context, sucursal, puntoVenta int) (*entity.EventoSignificativo, error)
}
