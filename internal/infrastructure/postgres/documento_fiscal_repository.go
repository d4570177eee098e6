package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/cobranzas-siat/internal/domain"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
)

var _ repository.DocumentoFiscalRepository = (*DocumentoFiscalRepo)(nil)

const columnasDocumento = `
	id, tipo, gestion, secuencia, sucursal, punto_venta, fecha_emision,
	tipo_emision, monto, estado, cuf, cufd, cafc, codigo_evento,
	codigo_recepcion_evento, codigo_recepcion_paquete, mensaje_rechazo,
	created_at, updated_at`

// DocumentoFiscalRepo implementación sobre PostgreSQL (usable con pool o tx).
type DocumentoFiscalRepo struct {
	q Querier
}

// NewDocumentoFiscalRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentoFiscalRepository(q Querier) *DocumentoFiscalRepo {
	return &DocumentoFiscalRepo{q: q}
}

// Create persiste el documento. La tupla (tipo, gestion, sucursal, secuencia)
// tiene constraint único en la tabla: un duplicado es un bug del contador.
func (r *DocumentoFiscalRepo) Create(ctx context.Context, d *entity.DocumentoFiscal) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	const q = `
		INSERT INTO fiscal_documents
			(id, tipo, gestion, secuencia, sucursal, punto_venta, fecha_emision,
			 tipo_emision, monto, estado, cuf, cufd, cafc, codigo_evento,
			 codigo_recepcion_evento, codigo_recepcion_paquete, mensaje_rechazo,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.Exec(ctx, q,
		d.ID, d.Tipo, d.Gestion, d.Secuencia, d.Sucursal, d.PuntoVenta, d.FechaEmision,
		d.TipoEmision, d.Monto, d.Estado, nullIfEmpty(d.CUF), nullIfEmpty(d.CUFD),
		nullIfEmpty(d.CAFC), nullIfEmpty(d.CodigoEvento),
		nullIfEmpty(d.CodigoRecepcionEvento), nullIfEmpty(d.CodigoRecepcionPaquete),
		nullIfEmpty(d.MensajeRechazo), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("secuencia ya asignada: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert fiscal_document: %w", err)
	}
	return nil
}

// Update actualiza el estado y los códigos fiscales del documento.
func (r *DocumentoFiscalRepo) Update(ctx context.Context, d *entity.DocumentoFiscal) error {
	d.UpdatedAt = time.Now()
	const q = `
		UPDATE fiscal_documents
		SET estado                   = $2,
		    cuf                      = COALESCE($3, cuf),
		    cufd                     = COALESCE($4, cufd),
		    codigo_evento            = COALESCE($5, codigo_evento),
		    codigo_recepcion_evento  = COALESCE($6, codigo_recepcion_evento),
		    codigo_recepcion_paquete = COALESCE($7, codigo_recepcion_paquete),
		    mensaje_rechazo          = COALESCE($8, mensaje_rechazo),
		    updated_at               = $9
		WHERE id = $1`
	_, err := r.q.Exec(ctx, q,
		d.ID, d.Estado, nullIfEmpty(d.CUF), nullIfEmpty(d.CUFD),
		nullIfEmpty(d.CodigoEvento), nullIfEmpty(d.CodigoRecepcionEvento),
		nullIfEmpty(d.CodigoRecepcionPaquete), nullIfEmpty(d.MensajeRechazo),
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update fiscal_document: %w", err)
	}
	return nil
}

// GetByID obtiene un documento por ID; nil, nil si no existe.
func (r *DocumentoFiscalRepo) GetByID(ctx context.Context, id string) (*entity.DocumentoFiscal, error) {
	q := `SELECT ` + columnasDocumento + ` FROM fiscal_documents WHERE id = $1`
	doc, err := scanDocumento(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal_document: %w", err)
	}
	return doc, nil
}

// ListByFiltro devuelve los documentos del estado dado, ordenados por fecha de
// emisión (desempate por secuencia): el orden posicional del paquete nace aquí.
func (r *DocumentoFiscalRepo) ListByFiltro(ctx context.Context, f repository.FiltroDocumentos) ([]*entity.DocumentoFiscal, error) {
	q := `SELECT ` + columnasDocumento + `
		FROM fiscal_documents
		WHERE estado = $1
		  AND ($2::int IS NULL OR sucursal = $2)
		  AND ($3::int IS NULL OR punto_venta = $3)
		ORDER BY fecha_emision ASC, secuencia ASC`
	rows, err := r.q.Query(ctx, q, f.Estado, f.Sucursal, f.PuntoVenta)
	if err != nil {
		return nil, fmt.Errorf("list fiscal_documents: %w", err)
	}
	defer rows.Close()

	var list []*entity.DocumentoFiscal
	for rows.Next() {
		doc, err := scanDocumento(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fiscal_document: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// MaxSecuencia devuelve la secuencia más alta persistida para el alcance; 0 si
// no hay documentos. Es la consulta de auto-corrección del contador.
func (r *DocumentoFiscalRepo) MaxSecuencia(ctx context.Context, tipo string, gestion, sucursal int) (int64, error) {
	const q = `
		SELECT COALESCE(MAX(secuencia), 0)
		FROM fiscal_documents
		WHERE tipo = $1 AND gestion = $2 AND sucursal = $3`
	var max int64
	if err := r.q.QueryRow(ctx, q, tipo, gestion, sucursal).Scan(&max); err != nil {
		return 0, fmt.Errorf("max secuencia: %w", err)
	}
	return max, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func scanDocumento(row pgxScanner) (*entity.DocumentoFiscal, error) {
	var d entity.DocumentoFiscal
	var cuf, cufd, cafc, evento, recEvento, recPaquete, rechazo *string
	err := row.Scan(
		&d.ID, &d.Tipo, &d.Gestion, &d.Secuencia, &d.Sucursal, &d.PuntoVenta,
		&d.FechaEmision, &d.TipoEmision, &d.Monto, &d.Estado,
		&cuf, &cufd, &cafc, &evento, &recEvento, &recPaquete, &rechazo,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.CUF = deref(cuf)
	d.CUFD = deref(cufd)
	d.CAFC = deref(cafc)
	d.CodigoEvento = deref(evento)
	d.CodigoRecepcionEvento = deref(recEvento)
	d.CodigoRecepcionPaquete = deref(recPaquete)
	d.MensajeRechazo = deref(rechazo)
	return &d, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
