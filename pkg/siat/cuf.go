// Package siat: utilidades del Sistema de Facturación del SIN (Bolivia).
// Incluye el cálculo del CUF (Código Único de Facturación): módulo 11 sobre la
// cadena numérica de emisión, conversión a base 16 y sufijo del código de
// control del CUFD vigente.
package siat

import (
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
)

// ParametrosCUF contiene los datos de emisión que componen el CUF, en el orden
// estricto definido por la Autoridad.
type ParametrosCUF struct {
	NIT             string    // NIT del emisor, solo dígitos (se rellena a 13)
	FechaEmision    time.Time // con precisión de milisegundos
	Sucursal        int
	Modalidad       int    // 1 = electrónica, 2 = computarizada
	TipoEmision     int    // 1 = en línea, 2 = fuera de línea (contingencia)
	TipoFactura     int    // 1 = con derecho a crédito fiscal
	DocumentoSector int    // ej: 11 = factura educativa
	NumeroFactura   int64  // secuencia emitida por el contador
	PuntoVenta      int
	CodigoControl   string // código de control del CUFD usado en la emisión
}

// GenerarCUF calcula el CUF:
//
//	cadena = NIT(13) + FechaHora(17) + Sucursal(4) + Modalidad(1) + TipoEmision(1) +
//	         TipoFactura(1) + DocumentoSector(2) + NumeroFactura(10) + PuntoVenta(4)
//	cuf    = hex( cadena + DigitoMod11(cadena) ) + CodigoControl
//
// La salida hexadecimal va en mayúsculas, como la exige la Autoridad.
func GenerarCUF(p *ParametrosCUF) (string, error) {
	if p == nil {
		return "", fmt.Errorf("siat: ParametrosCUF es obligatorio")
	}
	nit := soloDigitos(p.NIT)
	if nit == "" {
		return "", fmt.Errorf("siat: NIT es obligatorio para el CUF")
	}
	if len(nit) > 13 {
		return "", fmt.Errorf("siat: NIT supera 13 dígitos: %q", p.NIT)
	}
	if p.NumeroFactura <= 0 {
		return "", fmt.Errorf("siat: NumeroFactura debe ser positivo")
	}
	if p.CodigoControl == "" {
		return "", fmt.Errorf("siat: CodigoControl del CUFD es obligatorio")
	}

	// FechaHora: yyyyMMddHHmmssSSS (17 dígitos).
	fecha := p.FechaEmision.Format("20060102150405.000")
	fecha = strings.Replace(fecha, ".", "", 1)

	cadena := fmt.Sprintf("%013s%s%04d%d%d%d%02d%010d%04d",
		nit, fecha, p.Sucursal, p.Modalidad, p.TipoEmision,
		p.TipoFactura, p.DocumentoSector, p.NumeroFactura, p.PuntoVenta,
	)
	cadena += string(DigitoMod11(cadena))

	n, ok := new(big.Int).SetString(cadena, 10)
	if !ok {
		return "", fmt.Errorf("siat: cadena CUF no numérica: %q", cadena)
	}
	return strings.ToUpper(n.Text(16)) + p.CodigoControl, nil
}

// DigitoMod11 calcula el dígito verificador módulo 11 de una cadena de dígitos.
// Pesos 2..9 cíclicos de derecha a izquierda; 11-resto, con 10 → 1 y 11 → 0.
func DigitoMod11(digitos string) byte {
	peso := 2
	suma := 0
	for i := len(digitos) - 1; i >= 0; i-- {
		suma += int(digitos[i]-'0') * peso
		peso++
		if peso > 9 {
			peso = 2
		}
	}
	d := 11 - suma%11
	switch d {
	case 11:
		return '0'
	case 10:
		return '1'
	default:
		return byte('0' + d)
	}
}

// VerificarDigitoMod11 valida que el último carácter de la cadena sea el dígito
// módulo 11 correcto del resto.
func VerificarDigitoMod11(cadena string) bool {
	if len(cadena) < 2 {
		return false
	}
	base := cadena[:len(cadena)-1]
	return DigitoMod11(base) == cadena[len(cadena)-1]
}

// soloDigitos deja solo dígitos 0-9 (quita puntos, guiones y espacios del NIT).
func soloDigitos(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
