package facturacion

import (
	"context"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción que incluye los repos
// de documentos y del contador de secuencia. La emisión depende de esta
// atomicidad: si algo falla, ni el contador ni el documento quedan a medias.
type TxRunner interface {
	RunEmision(ctx context.Context, fn func(
		docs repository.DocumentoFiscalRepository,
		contador repository.ContadorSecuenciaRepository,
	) error) error
}
