package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tu-usuario/cobranzas-siat/internal/application/facturacion"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

var _ facturacion.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunEmision inicia una transacción con los repos de documentos y contador
// atados a la tx, y hace Commit o Rollback. La emisión de secuencia exige esta
// atomicidad: el incremento del contador y la auto-corrección contra el máximo
// persistido ocurren todo-o-nada.
func (r *TxRunner) RunEmision(ctx context.Context, fn func(
	docs repository.DocumentoFiscalRepository,
	contador repository.ContadorSecuenciaRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docs := NewDocumentoFiscalRepository(tx)
	contador := NewContadorSecuenciaRepository(tx)

	if err := fn(docs, contador); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
