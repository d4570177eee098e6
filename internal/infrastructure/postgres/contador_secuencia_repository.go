package postgres

import (
	"context"
	"fmt"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

var _ repository.ContadorSecuenciaRepository = (*ContadorSecuenciaRepo)(nil)

// ContadorSecuenciaRepo implementa el contador monotónico sobre PostgreSQL.
type ContadorSecuenciaRepo struct {
	q Querier
}

// NewContadorSecuenciaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewContadorSecuenciaRepository(q Querier) *ContadorSecuenciaRepo {
	return &ContadorSecuenciaRepo{q: q}
}

// Incrementar inserta el alcance con valor 1 o lo incrementa, en una sola
// sentencia atómica. Dos emisiones concurrentes jamás observan el mismo valor:
// el upsert serializa sobre la fila del alcance.
func (r *ContadorSecuenciaRepo) Incrementar(ctx context.Context, alcance string) (int64, error) {
	const q = `
		INSERT INTO sequence_counters (scope, last)
		VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE
		SET last = sequence_counters.last + 1
		RETURNING last`
	var last int64
	if err := r.q.QueryRow(ctx, q, alcance).Scan(&last); err != nil {
		return 0, fmt.Errorf("incrementar contador %s: %w", alcance, err)
	}
	return last, nil
}

// AvanzarHasta garantiza last >= valor. GREATEST evita retrocesos si otro
// emisor concurrente ya dejó el contador más adelante.
func (r *ContadorSecuenciaRepo) AvanzarHasta(ctx context.Context, alcance string, valor int64) error {
	const q = `
		INSERT INTO sequence_counters (scope, last)
		VALUES ($1, $2)
		ON CONFLICT (scope) DO UPDATE
		SET last = GREATEST(sequence_counters.last, EXCLUDED.last)`
	if _, err := r.q.Exec(ctx, q, alcance, valor); err != nil {
		return fmt.Errorf("avanzar contador %s a %d: %w", alcance, valor, err)
	}
	return nil
}
