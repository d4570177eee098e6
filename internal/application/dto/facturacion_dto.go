package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// EmitirDocumentoRequest petición de emisión de un documento fiscal.
type EmitirDocumentoRequest struct {
	Tipo         string          `json:"tipo"`        // RECIBO | FACTURA
	Sucursal     int             `json:"sucursal"`
	PuntoVenta   int             `json:"puntoVenta"`
	Monto        decimal.Decimal `json:"monto"`
	TipoEmision  string          `json:"tipoEmision"` // MANUAL | COMPUTARIZADA
	CAFC         string          `json:"cafc,omitempty"`
	Contingencia bool            `json:"contingencia"`
	FechaEmision time.Time       `json:"fechaEmision,omitempty"`
}

// DocumentoFiscalResponse representación HTTP de un documento fiscal.
type DocumentoFiscalResponse struct {
	ID                     string          `json:"id"`
	Tipo                   string          `json:"tipo"`
	Gestion                int             `json:"gestion"`
	Secuencia              int64           `json:"secuencia"`
	Sucursal               int             `json:"sucursal"`
	PuntoVenta             int             `json:"puntoVenta"`
	FechaEmision           time.Time       `json:"fechaEmision"`
	TipoEmision            string          `json:"tipoEmision"`
	Monto                  decimal.Decimal `json:"monto"`
	Estado                 string          `json:"estado"`
	CUF                    string          `json:"cuf,omitempty"`
	CUFD                   string          `json:"cufd,omitempty"`
	CAFC                   string          `json:"cafc,omitempty"`
	CodigoRecepcionPaquete string          `json:"codigoRecepcionPaquete,omitempty"`
	MensajeRechazo         string          `json:"mensajeRechazo,omitempty"`
	PlazoRegularizacion    *time.Time      `json:"plazoRegularizacion,omitempty"`
}

// ToDocumentoResponse mapea la entidad a su representación HTTP. El plazo solo
// viaja mientras el documento está en contingencia.
func ToDocumentoResponse(d *entity.DocumentoFiscal) DocumentoFiscalResponse {
	out := DocumentoFiscalResponse{
		ID:                     d.ID,
		Tipo:                   d.Tipo,
		Gestion:                d.Gestion,
		Secuencia:              d.Secuencia,
		Sucursal:               d.Sucursal,
		PuntoVenta:             d.PuntoVenta,
		FechaEmision:           d.FechaEmision,
		TipoEmision:            d.TipoEmision,
		Monto:                  d.Monto,
		Estado:                 d.Estado,
		CUF:                    d.CUF,
		CUFD:                   d.CUFD,
		CAFC:                   d.CAFC,
		CodigoRecepcionPaquete: d.CodigoRecepcionPaquete,
		MensajeRechazo:         d.MensajeRechazo,
	}
	if d.Estado == entity.EstadoContingencia {
		plazo := d.PlazoRegularizacion()
		out.PlazoRegularizacion = &plazo
	}
	return out
}
