package dto

import (
	"time"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// DocumentoPendienteResponse un documento en contingencia con su marca de plazo.
type DocumentoPendienteResponse struct {
	Documento DocumentoFiscalResponse `json:"documento"`
	Vencido   bool                    `json:"vencido"`
}

// ResultadoIntentoResponse resultado de un intento sobre un paquete.
type ResultadoIntentoResponse struct {
	PaqueteRef      string            `json:"paqueteRef"`
	Exito           bool              `json:"exito"`
	Pendiente       bool              `json:"pendiente"`
	CodigoRecepcion string            `json:"codigoRecepcion,omitempty"`
	Regularizados   []string          `json:"regularizados,omitempty"`
	Rechazados      map[string]string `json:"rechazados,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// PasadaResponse resumen de una pasada de regularización disparada a mano.
type PasadaResponse struct {
	Paquetes   int                        `json:"paquetes"`
	Intentos   []ResultadoIntentoResponse `json:"intentos"`
	EjecutadaA time.Time                  `json:"ejecutadaA"`
}

// IntentoResponse una entrada de la bitácora de intentos.
type IntentoResponse struct {
	ID              string    `json:"id"`
	PaqueteRef      string    `json:"paqueteRef"`
	DocumentoIDs    []string  `json:"documentoIds"`
	Exito           bool      `json:"exito"`
	CodigoRecepcion string    `json:"codigoRecepcion,omitempty"`
	ErrorDetalle    string    `json:"errorDetalle,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ToIntentoResponse mapea la entidad de bitácora.
func ToIntentoResponse(i *entity.IntentoRegularizacion) IntentoResponse {
	return IntentoResponse{
		ID:              i.ID,
		PaqueteRef:      i.PaqueteRef,
		DocumentoIDs:    i.DocumentoIDs,
		Exito:           i.Exito,
		CodigoRecepcion: i.CodigoRecepcion,
		ErrorDetalle:    i.ErrorDetalle,
		CreatedAt:       i.CreatedAt,
	}
}
