package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

var _ repository.IntentoRegularizacionRepository = (*IntentoRegularizacionRepo)(nil)

// IntentoRegularizacionRepo bitácora solo-inserción sobre PostgreSQL.
// No hay Update ni Delete: los intentos son inmutables por diseño de auditoría.
type IntentoRegularizacionRepo struct {
	q Querier
}

// NewIntentoRegularizacionRepository construye el adaptador.
func NewIntentoRegularizacionRepository(q Querier) *IntentoRegularizacionRepo {
	return &IntentoRegularizacionRepo{q: q}
}

func (r *IntentoRegularizacionRepo) Create(ctx context.Context, in *entity.IntentoRegularizacion) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	const q = `
		INSERT INTO regularization_attempts
			(id, paquete_ref, documento_ids, exito, codigo_recepcion, error_detalle, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, q,
		in.ID, in.PaqueteRef, in.DocumentoIDs, in.Exito,
		nullIfEmpty(in.CodigoRecepcion), nullIfEmpty(in.ErrorDetalle), in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert regularization_attempt: %w", err)
	}
	return nil
}

func (r *IntentoRegularizacionRepo) List(ctx context.Context, limit int) ([]*entity.IntentoRegularizacion, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, paquete_ref, documento_ids, exito, codigo_recepcion, error_detalle, created_at
		FROM regularization_attempts
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.q.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list regularization_attempts: %w", err)
	}
	defer rows.Close()

	var list []*entity.IntentoRegularizacion
	for rows.Next() {
		var in entity.IntentoRegularizacion
		var recepcion, detalle *string
		if err := rows.Scan(&in.ID, &in.PaqueteRef, &in.DocumentoIDs, &in.Exito,
			&recepcion, &detalle, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan regularization_attempt: %w", err)
		}
		in.CodigoRecepcion = deref(recepcion)
		in.ErrorDetalle = deref(detalle)
		list = append(list, &in)
	}
	return list, rows.Err()
}
