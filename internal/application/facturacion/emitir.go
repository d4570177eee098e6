package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tu-usuario/cobranzas-siat/internal/domain"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
	pkgsiat "github.com/tu-usuario/cobranzas-siat/pkg/siat"
)

// Config datos fiscales fijos de la institución para la emisión.
type Config struct {
	NIT             string
	Modalidad       int // 2 = computarizada
	DocumentoSector int // 11 = sector educativo
}

// SolicitudEmision parámetros de emisión de un documento fiscal.
type SolicitudEmision struct {
	Tipo         string // RECIBO | FACTURA
	Sucursal     int
	PuntoVenta   int
	Monto        decimal.Decimal
	TipoEmision  string // MANUAL | COMPUTARIZADA
	CAFC         string // obligatorio si TipoEmision es MANUAL
	Contingencia bool   // true: emitida sin conectividad, entra directo a CONTINGENCIA
	FechaEmision time.Time
}

// EmisionUseCase emite documentos fiscales con numeración sin huecos, segura
// bajo emisores concurrentes y auto-corregida contra la tabla de documentos.
type EmisionUseCase struct {
	txRunner  TxRunner
	autoridad infrasiat.ClienteAutoridad
	cfg       Config
	log       *logger.Logger
	reloj     func() time.Time
}

// NewEmisionUseCase construye el caso de uso.
func NewEmisionUseCase(txRunner TxRunner, autoridad infrasiat.ClienteAutoridad, cfg Config, log *logger.Logger) *EmisionUseCase {
	return &EmisionUseCase{
		txRunner:  txRunner,
		autoridad: autoridad,
		cfg:       cfg,
		log:       log,
		reloj:     time.Now,
	}
}

// SiguienteSecuencia emite el siguiente número para el alcance (tipo, gestion,
// sucursal) en una transacción propia. El upsert atómico entrega un candidato;
// si el candidato no supera estrictamente el máximo ya persistido (contador
// reseteado, cargas masivas fuera de banda), el contador se avanza a max+1 y
// se usa ese valor. Cualquier falla aborta sin efecto observable.
func (uc *EmisionUseCase) SiguienteSecuencia(ctx context.Context, tipo string, gestion, sucursal int) (int64, error) {
	var secuencia int64
	err := uc.txRunner.RunEmision(ctx, func(
		docs repository.DocumentoFiscalRepository,
		contador repository.ContadorSecuenciaRepository,
	) error {
		s, err := siguienteEnTx(ctx, docs, contador, tipo, gestion, sucursal)
		if err != nil {
			return err
		}
		secuencia = s
		return nil
	})
	if err != nil {
		return 0, err
	}
	return secuencia, nil
}

// siguienteEnTx obtiene y auto-corrige la secuencia dentro de una tx abierta.
func siguienteEnTx(
	ctx context.Context,
	docs repository.DocumentoFiscalRepository,
	contador repository.ContadorSecuenciaRepository,
	tipo string, gestion, sucursal int,
) (int64, error) {
	alcance := entity.AlcanceSecuencia(tipo, gestion, sucursal)
	candidato, err := contador.Incrementar(ctx, alcance)
	if err != nil {
		return 0, fmt.Errorf("emitir secuencia %s: %w", alcance, err)
	}
	max, err := docs.MaxSecuencia(ctx, tipo, gestion, sucursal)
	if err != nil {
		return 0, fmt.Errorf("verificar máximo %s: %w", alcance, err)
	}
	if candidato <= max {
		candidato = max + 1
		if err := contador.AvanzarHasta(ctx, alcance, candidato); err != nil {
			return 0, fmt.Errorf("corregir contador %s: %w", alcance, err)
		}
	}
	return candidato, nil
}

// Emitir crea un documento fiscal con la siguiente secuencia del alcance y su
// CUF calculado con el CUFD vigente. Si no hay CUFD disponible y la emisión es
// manual de contingencia (talonario CAFC), el documento sale sin CUF y lo
// obtiene al regularizarse; en cualquier otro caso la falta de CUFD es error.
func (uc *EmisionUseCase) Emitir(ctx context.Context, in SolicitudEmision) (*entity.DocumentoFiscal, error) {
	if in.Tipo != entity.TipoRecibo && in.Tipo != entity.TipoFactura {
		return nil, domain.ErrInvalidInput
	}
	if in.TipoEmision != entity.EmisionManual && in.TipoEmision != entity.EmisionComputarizada {
		return nil, domain.ErrInvalidInput
	}
	if in.TipoEmision == entity.EmisionManual && in.CAFC == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.Monto.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	fecha := in.FechaEmision
	if fecha.IsZero() {
		fecha = uc.reloj()
	}
	gestion := fecha.Year()

	cufd, errCUFD := uc.autoridad.ObtenerCUFD(ctx, false)
	if errCUFD != nil {
		if !(in.Contingencia && in.TipoEmision == entity.EmisionManual) {
			return nil, fmt.Errorf("sin CUFD para emitir: %w", errCUFD)
		}
		uc.log.Warn().Err(errCUFD).Msg("emisión manual sin CUFD disponible; el CUF se calculará al regularizar")
	}

	estado := entity.EstadoBorrador
	if in.Contingencia {
		estado = entity.EstadoContingencia
	}

	doc := &entity.DocumentoFiscal{
		Tipo:         in.Tipo,
		Gestion:      gestion,
		Sucursal:     in.Sucursal,
		PuntoVenta:   in.PuntoVenta,
		FechaEmision: fecha,
		TipoEmision:  in.TipoEmision,
		Monto:        in.Monto,
		Estado:       estado,
		CAFC:         in.CAFC,
	}

	err := uc.txRunner.RunEmision(ctx, func(
		docs repository.DocumentoFiscalRepository,
		contador repository.ContadorSecuenciaRepository,
	) error {
		secuencia, err := siguienteEnTx(ctx, docs, contador, in.Tipo, gestion, in.Sucursal)
		if err != nil {
			return err
		}
		doc.Secuencia = secuencia

		if cufd != nil {
			cuf, err := pkgsiat.GenerarCUF(&pkgsiat.ParametrosCUF{
				NIT:             uc.cfg.NIT,
				FechaEmision:    fecha,
				Sucursal:        in.Sucursal,
				Modalidad:       uc.cfg.Modalidad,
				TipoEmision:     tipoEmisionCodigo(in.Contingencia),
				TipoFactura:     1,
				DocumentoSector: uc.cfg.DocumentoSector,
				NumeroFactura:   secuencia,
				PuntoVenta:      in.PuntoVenta,
				CodigoControl:   cufd.CodigoControl,
			})
			if err != nil {
				return fmt.Errorf("calcular CUF: %w", err)
			}
			doc.CUF = cuf
			doc.CUFD = cufd.Codigo
		}

		return docs.Create(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("documento", doc.ID).
		Str("tipo", doc.Tipo).
		Int64("secuencia", doc.Secuencia).
		Str("estado", doc.Estado).
		Msg("documento fiscal emitido")
	return doc, nil
}

// tipoEmisionCodigo: 1 = en línea, 2 = fuera de línea (contingencia).
func tipoEmisionCodigo(contingencia bool) int {
	if contingencia {
		return 2
	}
	return 1
}
