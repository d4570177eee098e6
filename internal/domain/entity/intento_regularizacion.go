package entity

import "time"

// IntentoRegularizacion es el registro de auditoría de una pasada de
// regularización sobre un paquete: qué se intentó, con qué códigos fiscales y
// qué respondió la Autoridad. Solo-inserción; nunca se modifica después de
// creado, lo que permite reconstruir la historia completa de envíos.
type IntentoRegularizacion struct {
	ID              string
	PaqueteRef      string   // clave del paquete: cufd + codigoEvento
	DocumentoIDs    []string // documentos cubiertos, en orden posicional
	Exito           bool
	CodigoRecepcion string // código de recepción del paquete, si lo hubo
	ErrorDetalle    string // payload de error de la Autoridad o del transporte
	CreatedAt       time.Time
}
