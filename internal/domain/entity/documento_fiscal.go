package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento fiscal emitidos por el sistema de cobranzas.
const (
	TipoRecibo  = "RECIBO"
	TipoFactura = "FACTURA"
)

// Tipos de emisión según el sistema del SIN.
const (
	EmisionManual        = "MANUAL"        // talonario pre-impreso dentro de un rango CAFC
	EmisionComputarizada = "COMPUTARIZADA" // emitida por el sistema
)

// Estados del ciclo de vida de un documento fiscal.
// BORRADOR → CONTINGENCIA → {ENVIADA, PENDIENTE, VALIDADA, RECHAZADA}.
// RECHAZADA es terminal: el número de secuencia nunca se libera ni se reutiliza.
const (
	EstadoBorrador     = "BORRADOR"
	EstadoContingencia = "CONTINGENCIA"
	EstadoEnviada      = "ENVIADA"
	EstadoPendiente    = "PENDIENTE"
	EstadoValidada     = "VALIDADA"
	EstadoRechazada    = "RECHAZADA"
)

// Plazos de regularización de contingencia según tipo de emisión.
const (
	PlazoManual        = 72 * time.Hour
	PlazoComputarizada = 48 * time.Hour
)

// DocumentoFiscal representa un recibo de colegiatura o una factura fiscalizada.
// La tupla (Tipo, Gestion, Sucursal, Secuencia) es única y nunca se reasigna.
type DocumentoFiscal struct {
	ID           string
	Tipo         string // RECIBO | FACTURA
	Gestion      int    // año fiscal
	Secuencia    int64
	Sucursal     int
	PuntoVenta   int
	FechaEmision time.Time
	TipoEmision  string // MANUAL | COMPUTARIZADA
	Monto        decimal.Decimal
	Estado       string

	// Códigos fiscales SIAT.
	CUF                    string // código único de facturación, conocido al emitir
	CUFD                   string // CUFD vigente al momento de la emisión
	CAFC                   string // referencia al rango autorizado (solo emisión manual)
	CodigoEvento           string // evento significativo declarado para la contingencia
	CodigoRecepcionEvento  string // devuelto por la Autoridad al registrar el evento
	CodigoRecepcionPaquete string // devuelto por la Autoridad al enviar el paquete
	MensajeRechazo         string // detalle devuelto por la Autoridad si fue rechazado

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Alcance devuelve la clave del contador de secuencia: tipo:gestion:sucursal.
func (d *DocumentoFiscal) Alcance() string {
	return AlcanceSecuencia(d.Tipo, d.Gestion, d.Sucursal)
}

// AlcanceSecuencia construye la clave de alcance del contador.
func AlcanceSecuencia(tipo string, gestion, sucursal int) string {
	return fmt.Sprintf("%s:%d:%d", tipo, gestion, sucursal)
}

// PlazoRegularizacion devuelve la fecha límite para regularizar el documento:
// emisión + 72h si es manual, emisión + 48h en caso contrario.
func (d *DocumentoFiscal) PlazoRegularizacion() time.Time {
	if d.TipoEmision == EmisionManual {
		return d.FechaEmision.Add(PlazoManual)
	}
	return d.FechaEmision.Add(PlazoComputarizada)
}

// Vencido indica si el documento superó su plazo de regularización.
// Un documento vencido sigue siendo elegible para envío: la Autoridad puede
// rechazarlo por plazo, y ese rechazo es un resultado esperado, no un error.
func (d *DocumentoFiscal) Vencido(ahora time.Time) bool {
	return ahora.After(d.PlazoRegularizacion())
}

// EsTerminal indica si el documento salió de la responsabilidad del núcleo de
// regularización (VALIDADA o RECHAZADA).
func (d *DocumentoFiscal) EsTerminal() bool {
	return d.Estado == EstadoValidada || d.Estado == EstadoRechazada
}
