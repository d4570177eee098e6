package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

var _ repository.EventoSignificativoRepository = (*EventoSignificativoRepo)(nil)

// EventoSignificativoRepo implementación sobre PostgreSQL.
type EventoSignificativoRepo struct {
	q Querier
}

// NewEventoSignificativoRepository construye el adaptador.
func NewEventoSignificativoRepository(q Querier) *EventoSignificativoRepo {
	return &EventoSignificativoRepo{q: q}
}

func (r *EventoSignificativoRepo) Create(ctx context.Context, ev *entity.EventoSignificativo) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	const q = `
		INSERT INTO significant_events
			(id, sucursal, punto_venta, codigo_evento, descripcion,
			 vigencia_inicio, vigencia_fin, codigo_recepcion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, q,
		ev.ID, ev.Sucursal, ev.PuntoVenta, ev.CodigoEvento, ev.Descripcion,
		ev.VigenciaInicio, ev.VigenciaFin, ev.CodigoRecepcion, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert significant_event: %w", err)
	}
	return nil
}

// GetByContexto devuelve el evento más reciente del contexto; nil, nil si no hay.
func (r *EventoSignificativoRepo) GetByContexto(ctx context.Context, sucursal, puntoVenta int) (*entity.EventoSignificativo, error) {
	const q = `
		SELECT id, sucursal, punto_venta, codigo_evento, descripcion,
		       vigencia_inicio, vigencia_fin, codigo_recepcion, created_at
		FROM significant_events
		WHERE sucursal = $1 AND punto_venta = $2
		ORDER BY created_at DESC
		LIMIT 1`
	var ev entity.EventoSignificativo
	err := r.q.QueryRow(ctx, q, sucursal, puntoVenta).Scan(
		&ev.ID, &ev.Sucursal, &ev.PuntoVenta, &ev.CodigoEvento, &ev.Descripcion,
		&ev.VigenciaInicio, &ev.VigenciaFin, &ev.CodigoRecepcion, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get significant_event: %w", err)
	}
	return &ev, nil
}
