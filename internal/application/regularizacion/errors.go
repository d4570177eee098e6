package regularizacion

import "errors"

// ErrSinConfiguracionFiscal: no hay CUIS ni CUFD disponibles en absoluto.
// Es fatal para la pasada: se informa al operador y no se reintenta solo.
var ErrSinConfiguracionFiscal = errors.New("sin CUIS o CUFD disponible para operar contra la Autoridad")

// RechazoEnvio: la Autoridad rechazó explícitamente el envío del paquete antes
// de procesarlo. El intento aborta con el mensaje de la Autoridad y los
// documentos quedan en CONTINGENCIA.
type RechazoEnvio struct {
	Mensaje string
}

func (e *RechazoEnvio) Error() string {
	return "la Autoridad rechazó el envío: " + e.Mensaje
}
