package repository

import (
	"context"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// IntentoRegularizacionRepository bitácora solo-inserción de intentos de
// regularización. No expone Update ni Delete: los intentos son inmutables.
type IntentoRegularizacionRepository interface {
	Create(ctx context.Context, intento *entity.IntentoRegularizacion) error
	List(ctx context.Context, limit int) ([]*entity.IntentoRegularizacion, error)
}
