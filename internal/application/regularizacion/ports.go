package regularizacion

import (
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
)

// ConstructorPaquete serializa, comprime y calcula el hash del paquete.
// La implementación concreta vive en infrastructure/siat; para tests se
// inyecta un fake.
type ConstructorPaquete interface {
	Construir(docs []*entity.DocumentoFiscal) (*siat.PaqueteArchivo, error)
}
