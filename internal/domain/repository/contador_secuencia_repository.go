package repository

import "context"

// ContadorSecuenciaRepository contador monotónico por alcance (tipo:gestion:sucursal).
// El contador se crea perezosamente en el primer uso y nunca se elimina.
type ContadorSecuenciaRepository interface {
	// Incrementar inserta el alcance con valor 1 si no existe, o lo incrementa
	// en uno, en una sola sentencia atómica, y devuelve el valor resultante.
	// Prohibido implementarlo como leer-luego-escribir: dos llamadas
	// concurrentes jamás pueden observar el mismo valor.
	Incrementar(ctx context.Context, alcance string) (int64, error)

	// AvanzarHasta garantiza last >= valor para el alcance (GREATEST en una
	// sentencia). Se usa para auto-corregir el contador cuando la tabla de
	// documentos ya contiene secuencias mayores (cargas externas, resets).
	AvanzarHasta(ctx context.Context, alcance string, valor int64) error
}
