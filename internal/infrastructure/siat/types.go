package siat

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ── Códigos de estado del WS ──────────────────────────────────────────────────

// Estados que devuelve la Autoridad en codigoEstado/codigoDescripcion.
const (
	codigoEstadoPendiente = 901
	codigoEstadoRechazada = 902
	codigoEstadoObservada = 904
	codigoEstadoValidada  = 908
)

// CodigoYaRegistrada es el mensaje informativo "el documento ya fue registrado".
// No constituye un rechazo: aparece cuando se reintenta un paquete cuyo envío
// anterior sí llegó a la Autoridad.
const CodigoYaRegistrada = 980

// ── Unión cerrada de resultados ───────────────────────────────────────────────

// Estado es la forma del resultado de una recepción o validación de paquete.
// Es una unión cerrada: el orquestador ramifica sobre estos valores y nunca
// vuelve a inspeccionar la respuesta cruda del WS.
type Estado int

const (
	// EstadoValidada: todos los documentos del paquete fueron aceptados.
	EstadoValidada Estado = iota
	// EstadoPendiente: la Autoridad aún no resolvió; reconsultar más tarde sin reenviar.
	EstadoPendiente
	// EstadoRechazada: el paquete completo fue rechazado en validación.
	EstadoRechazada
	// EstadoObservada: aceptación parcial; los mensajes indican, por índice
	// posicional, qué documentos fueron observados.
	EstadoObservada
	// EstadoRechazoTransporte: la Autoridad rechazó el envío antes de procesarlo
	// (transaccion = false o RECHAZADA en recepción).
	EstadoRechazoTransporte
)

func (e Estado) String() string {
	switch e {
	case EstadoValidada:
		return "VALIDADA"
	case EstadoPendiente:
		return "PENDIENTE"
	case EstadoRechazada:
		return "RECHAZADA"
	case EstadoObservada:
		return "OBSERVADA"
	case EstadoRechazoTransporte:
		return "RECHAZO_TRANSPORTE"
	default:
		return fmt.Sprintf("Estado(%d)", int(e))
	}
}

// Mensaje es una entrada de mensajesList. Para paquetes observados, Indice es
// la posición (base 0) del documento observado dentro del paquete enviado: el
// formato de wire es posicional por contrato, nunca por identidad de objeto.
type Mensaje struct {
	Indice      int
	Codigo      int
	Descripcion string
	Advertencia bool // mensajes consultivos que no rechazan el documento
}

// RespuestaRecepcion es la respuesta cruda del WS para recepción y validación
// de paquetes, ya desempaquetada del envelope SOAP.
type RespuestaRecepcion struct {
	Transaccion       bool
	CodigoRecepcion   string
	CodigoEstado      int
	CodigoDescripcion string // VALIDADA | PENDIENTE | RECHAZADA | OBSERVADA
	Mensajes          []Mensaje
}

// ResultadoValidacion es la respuesta ya interpretada.
type ResultadoValidacion struct {
	Estado          Estado
	CodigoRecepcion string
	Descripcion     string
	Mensajes        []Mensaje
}

// InterpretarRespuesta es el único punto donde se traduce la forma laxa de la
// respuesta del WS (codigoDescripcion / codigoEstado / transaccion) a la unión
// cerrada. Prioriza transaccion=false, luego la descripción textual y usa el
// código numérico como respaldo.
func InterpretarRespuesta(r *RespuestaRecepcion) *ResultadoValidacion {
	out := &ResultadoValidacion{
		CodigoRecepcion: r.CodigoRecepcion,
		Descripcion:     r.CodigoDescripcion,
		Mensajes:        r.Mensajes,
	}
	if !r.Transaccion {
		out.Estado = EstadoRechazoTransporte
		if out.Descripcion == "" {
			out.Descripcion = "la Autoridad no aceptó la transacción"
		}
		return out
	}
	switch strings.ToUpper(strings.TrimSpace(r.CodigoDescripcion)) {
	case "VALIDADA":
		out.Estado = EstadoValidada
	case "PENDIENTE", "EN PROCESO":
		out.Estado = EstadoPendiente
	case "OBSERVADA":
		out.Estado = EstadoObservada
	case "RECHAZADA":
		out.Estado = EstadoRechazada
	default:
		switch r.CodigoEstado {
		case codigoEstadoValidada:
			out.Estado = EstadoValidada
		case codigoEstadoPendiente:
			out.Estado = EstadoPendiente
		case codigoEstadoObservada:
			out.Estado = EstadoObservada
		case codigoEstadoRechazada:
			out.Estado = EstadoRechazada
		default:
			// Forma desconocida: tratarla como rechazo de transporte para que el
			// orquestador no toque los documentos y el paquete se reintente.
			out.Estado = EstadoRechazoTransporte
			out.Descripcion = fmt.Sprintf("respuesta no reconocida: %q (codigoEstado %d)",
				r.CodigoDescripcion, r.CodigoEstado)
		}
	}
	return out
}

// ObservacionesPorIndice construye el mapa índice→errores de un resultado
// OBSERVADA. Ignora los mensajes consultivos y el informativo "ya registrada":
// un documento cuyo índice no aparece en el mapa fue aceptado.
func (r *ResultadoValidacion) ObservacionesPorIndice() map[int][]Mensaje {
	out := make(map[int][]Mensaje)
	for _, m := range r.Mensajes {
		if m.Advertencia || m.Codigo == CodigoYaRegistrada {
			continue
		}
		out[m.Indice] = append(out[m.Indice], m)
	}
	return out
}

// ── Solicitudes ───────────────────────────────────────────────────────────────

// CodigoVigente es un CUIS o CUFD con su ventana de vigencia.
type CodigoVigente struct {
	Codigo        string
	CodigoControl string // solo CUFD
	FechaVigencia time.Time
}

// Vigente indica si el código sigue dentro de su ventana de validez.
func (c *CodigoVigente) Vigente(ahora time.Time) bool {
	return ahora.Before(c.FechaVigencia)
}

// SolicitudEnvioPaquete parámetros de recepcionPaqueteFactura.
type SolicitudEnvioPaquete struct {
	CUIS                  string
	CUFD                  string
	TipoDocumento         int    // tipoFacturaDocumento
	Archivo               []byte // paquete comprimido (gzip)
	Hash                  string // sha256 hex del archivo
	Cantidad              int    // cantidad de documentos del paquete
	CAFC                  string
	CodigoEvento          string // opcional: evento significativo declarado
	CodigoRecepcionEvento string // opcional: código devuelto por registroEvento
	Sucursal              int
	PuntoVenta            int
}

// SolicitudValidacionPaquete parámetros de validacionRecepcionPaqueteFactura.
type SolicitudValidacionPaquete struct {
	CUIS            string
	CUFD            string
	TipoDocumento   int
	CodigoRecepcion string // código devuelto por el envío
	Sucursal        int
	PuntoVenta      int
}

// SolicitudRegistroEvento parámetros de registroEventoSignificativo.
type SolicitudRegistroEvento struct {
	CUIS         string
	CUFD         string // debe ser un CUFD fresco: registrar contra uno viejo es rechazado
	CodigoEvento string
	Descripcion  string
	Inicio       time.Time
	Fin          time.Time
	Sucursal     int
	PuntoVenta   int
}

// ── Puerto ────────────────────────────────────────────────────────────────────

// ClienteAutoridad define el puerto de salida hacia el WS de la Autoridad.
// La implementación concreta usa SOAP; para tests se inyecta un fake.
type ClienteAutoridad interface {
	// ObtenerCUIS devuelve el código de sistema vigente o, si no hay ninguno
	// vigente, el más reciente disponible.
	ObtenerCUIS(ctx context.Context) (*CodigoVigente, error)

	// ObtenerCUFD devuelve el código diario. Con fresco=true solicita uno nuevo
	// a la Autoridad (requisito previo al registro de eventos); con fresco=false
	// devuelve el vigente.
	ObtenerCUFD(ctx context.Context, fresco bool) (*CodigoVigente, error)

	// RegistrarEvento registra un evento significativo y devuelve su código de recepción.
	RegistrarEvento(ctx context.Context, s *SolicitudRegistroEvento) (string, error)

	// EnviarPaquete envía el paquete comprimido. La respuesta se devuelve cruda;
	// el caller la interpreta con InterpretarRespuesta.
	EnviarPaquete(ctx context.Context, s *SolicitudEnvioPaquete) (*RespuestaRecepcion, error)

	// ValidarPaquete consulta el resultado de un envío previo.
	ValidarPaquete(ctx context.Context, s *SolicitudValidacionPaquete) (*RespuestaRecepcion, error)
}
