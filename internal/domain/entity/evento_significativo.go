package entity

import "time"

// EventoSignificativo representa un evento declarado ante la Autoridad (ej: corte
// de conectividad) que contextualiza los documentos emitidos en contingencia.
// Se crea a lo más una vez por contexto (sucursal, puntoVenta) y es inmutable:
// los paquetes posteriores reutilizan su código de recepción, nunca lo editan.
type EventoSignificativo struct {
	ID              string
	Sucursal        int
	PuntoVenta      int
	CodigoEvento    string
	Descripcion     string
	VigenciaInicio  time.Time // min(fechaEmision) de los documentos cubiertos
	VigenciaFin     time.Time // max(fechaEmision) de los documentos cubiertos
	CodigoRecepcion string    // devuelto por la Autoridad al registrar el evento
	CreatedAt       time.Time
}
