package regularizacion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
	pkgsiat "github.com/tu-usuario/cobranzas-siat/pkg/siat"
)

// ConfigOrquestador datos fiscales fijos para el armado y envío de paquetes.
type ConfigOrquestador struct {
	NIT             string
	Modalidad       int
	DocumentoSector int
	TipoDocumento   int // tipoFacturaDocumento del WS
	// EsperaValidacion es la pausa entre el envío y la consulta de validación;
	// la Autoridad procesa el paquete de forma asíncrona.
	EsperaValidacion time.Duration
}

// ResultadoIntento es el resumen de un intento de regularización sobre un
// paquete. Exactamente una de estas cuatro formas ocurre: éxito total, éxito
// parcial (Rechazados no vacío), pendiente, o falla sin efecto (Error no nil).
type ResultadoIntento struct {
	PaqueteRef      string
	Exito           bool
	Pendiente       bool
	CodigoRecepcion string
	Regularizados   []string          // IDs que pasaron a VALIDADA
	Rechazados      map[string]string // ID -> detalle de la observación
	Error           error
}

// Orquestador ejecuta el ciclo de regularización de un paquete de contingencia:
// asegurar el evento, armar y comprimir el archivo, enviarlo, esperar el
// asentamiento, validar y reconciliar el resultado sobre cada documento.
//
// La regla central es que los documentos solo cambian de estado cuando la
// Autoridad se pronunció sobre ellos: toda falla anterior al envío deja el
// paquete intacto en CONTINGENCIA, y una falla de transporte posterior al envío
// los deja en PENDIENTE con su código de recepción, porque el paquete está en
// vuelo y reenviarlo duplicaría documentos.
type Orquestador struct {
	docs        repository.DocumentoFiscalRepository
	intentos    repository.IntentoRegularizacionRepository
	registrador *RegistradorEventos
	autoridad   infrasiat.ClienteAutoridad
	constructor ConstructorPaquete
	cfg         ConfigOrquestador
	log         *logger.Logger
}

// NewOrquestador construye el orquestador.
func NewOrquestador(
	docs repository.DocumentoFiscalRepository,
	intentos repository.IntentoRegularizacionRepository,
	registrador *RegistradorEventos,
	autoridad infrasiat.ClienteAutoridad,
	constructor ConstructorPaquete,
	cfg ConfigOrquestador,
	log *logger.Logger,
) *Orquestador {
	return &Orquestador{
		docs:        docs,
		intentos:    intentos,
		registrador: registrador,
		autoridad:   autoridad,
		constructor: constructor,
		cfg:         cfg,
		log:         log,
	}
}

// Regularizar procesa un paquete de contingencia de punta a punta y devuelve
// el resultado del intento. Nunca devuelve error: toda falla queda capturada
// en ResultadoIntento.Error y en la bitácora de intentos.
func (o *Orquestador) Regularizar(ctx context.Context, p *PaqueteContingencia) *ResultadoIntento {
	res := &ResultadoIntento{PaqueteRef: p.Ref()}

	cuis, err := o.obtenerCUIS(ctx)
	if err != nil {
		res.Error = err
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	// El registro del evento es degradable: si falla, el paquete se envía igual
	// declarando el evento sin código de recepción, y la Autoridad decide.
	var codigoRecepcionEvento string
	if p.CodigoEvento != "" {
		codigoRecepcionEvento, err = o.registrador.AsegurarEvento(ctx, cuis.Codigo, p)
		if err != nil {
			o.log.Warn().Err(err).
				Str("paquete", p.Ref()).
				Msg("evento significativo no registrado; se continúa sin código de recepción")
			codigoRecepcionEvento = ""
		}
	}

	if err := o.completarCUF(ctx, p); err != nil {
		res.Error = err
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	archivo, err := o.constructor.Construir(p.Documentos)
	if err != nil {
		res.Error = fmt.Errorf("construir paquete %s: %w", p.Ref(), err)
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	respEnvio, err := o.autoridad.EnviarPaquete(ctx, &infrasiat.SolicitudEnvioPaquete{
		CUIS:                  cuis.Codigo,
		CUFD:                  p.CUFD,
		TipoDocumento:         o.cfg.TipoDocumento,
		Archivo:               archivo.Contenido,
		Hash:                  archivo.Hash,
		Cantidad:              archivo.Cantidad,
		CAFC:                  cafcDelPaquete(p.Documentos),
		CodigoEvento:          p.CodigoEvento,
		CodigoRecepcionEvento: codigoRecepcionEvento,
		Sucursal:              p.Sucursal,
		PuntoVenta:            p.PuntoVenta,
	})
	if err != nil {
		// Falla de transporte antes de confirmación: sin efecto sobre los
		// documentos, el paquete completo queda elegible para la próxima pasada.
		res.Error = fmt.Errorf("enviar paquete %s: %w", p.Ref(), err)
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	recepcion := infrasiat.InterpretarRespuesta(respEnvio)
	if recepcion.Estado == infrasiat.EstadoRechazoTransporte || recepcion.Estado == infrasiat.EstadoRechazada {
		res.Error = &RechazoEnvio{Mensaje: recepcion.Descripcion}
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}
	res.CodigoRecepcion = recepcion.CodigoRecepcion

	// Desde aquí el paquete está en vuelo: los documentos quedan ENVIADA y ya
	// no pueden volver a CONTINGENCIA.
	o.marcarEnviados(ctx, p.Documentos, recepcion.CodigoRecepcion, codigoRecepcionEvento)

	if err := o.esperarAsentamiento(ctx); err != nil {
		o.marcarPendientes(ctx, p.Documentos)
		res.Pendiente = true
		res.Error = err
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	respValidacion, err := o.autoridad.ValidarPaquete(ctx, &infrasiat.SolicitudValidacionPaquete{
		CUIS:            cuis.Codigo,
		CUFD:            p.CUFD,
		TipoDocumento:   o.cfg.TipoDocumento,
		CodigoRecepcion: recepcion.CodigoRecepcion,
		Sucursal:        p.Sucursal,
		PuntoVenta:      p.PuntoVenta,
	})
	if err != nil {
		// El envío ya fue aceptado: no se reenvía. Los documentos esperan en
		// PENDIENTE y la revalidación resolverá con el código de recepción.
		o.marcarPendientes(ctx, p.Documentos)
		res.Pendiente = true
		res.Error = fmt.Errorf("validar paquete %s: %w", p.Ref(), err)
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	o.reconciliar(ctx, p.Documentos, infrasiat.InterpretarRespuesta(respValidacion), res)
	o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
	return res
}

// Revalidar reconsulta el resultado de un paquete ya enviado cuyos documentos
// quedaron PENDIENTE. No reenvía nada: solo valida contra el código de
// recepción original y reconcilia.
func (o *Orquestador) Revalidar(ctx context.Context, p *PaqueteRevalidacion) *ResultadoIntento {
	res := &ResultadoIntento{PaqueteRef: p.Ref(), CodigoRecepcion: p.CodigoRecepcion}

	cuis, err := o.obtenerCUIS(ctx)
	if err != nil {
		res.Error = err
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	resp, err := o.autoridad.ValidarPaquete(ctx, &infrasiat.SolicitudValidacionPaquete{
		CUIS:            cuis.Codigo,
		CUFD:            p.CUFD,
		TipoDocumento:   o.cfg.TipoDocumento,
		CodigoRecepcion: p.CodigoRecepcion,
		Sucursal:        p.Sucursal,
		PuntoVenta:      p.PuntoVenta,
	})
	if err != nil {
		res.Pendiente = true
		res.Error = fmt.Errorf("revalidar paquete %s: %w", p.Ref(), err)
		o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
		return res
	}

	o.reconciliar(ctx, p.Documentos, infrasiat.InterpretarRespuesta(resp), res)
	o.registrarIntento(ctx, p.Ref(), p.Documentos, res)
	return res
}

// reconciliar aplica el veredicto de la Autoridad sobre cada documento del
// paquete. El mapeo de observaciones es posicional: el índice del mensaje
// apunta al documento en esa posición del paquete enviado.
func (o *Orquestador) reconciliar(
	ctx context.Context,
	docs []*entity.DocumentoFiscal,
	resultado *infrasiat.ResultadoValidacion,
	res *ResultadoIntento,
) {
	switch resultado.Estado {
	case infrasiat.EstadoValidada:
		res.Exito = true
		for _, d := range docs {
			d.Estado = entity.EstadoValidada
			o.actualizar(ctx, d)
			res.Regularizados = append(res.Regularizados, d.ID)
		}

	case infrasiat.EstadoObservada:
		// Aceptación parcial: los índices observados se rechazan con el detalle
		// de la Autoridad, el resto queda validado. El intento cuenta como éxito
		// porque la Autoridad resolvió el paquete.
		res.Exito = true
		res.Rechazados = make(map[string]string)
		observados := resultado.ObservacionesPorIndice()
		for i, d := range docs {
			if mensajes, ok := observados[i]; ok {
				d.Estado = entity.EstadoRechazada
				d.MensajeRechazo = unirMensajes(mensajes)
				o.actualizar(ctx, d)
				res.Rechazados[d.ID] = d.MensajeRechazo
				continue
			}
			d.Estado = entity.EstadoValidada
			o.actualizar(ctx, d)
			res.Regularizados = append(res.Regularizados, d.ID)
		}

	case infrasiat.EstadoRechazada:
		res.Rechazados = make(map[string]string)
		for _, d := range docs {
			d.Estado = entity.EstadoRechazada
			d.MensajeRechazo = resultado.Descripcion
			o.actualizar(ctx, d)
			res.Rechazados[d.ID] = d.MensajeRechazo
		}

	case infrasiat.EstadoPendiente, infrasiat.EstadoRechazoTransporte:
		// PENDIENTE: la Autoridad aún procesa; una forma no reconocida en la
		// validación recibe el mismo trato para no resolver documentos sin
		// veredicto. El código de recepción ya está en cada documento.
		res.Pendiente = true
		o.marcarPendientes(ctx, docs)
	}
}

// completarCUF calcula el CUF de los documentos manuales que salieron sin él
// por falta de CUFD al emitir. Usa el CUFD vigente y lo adopta como CUFD del
// paquete si este aún no tiene.
func (o *Orquestador) completarCUF(ctx context.Context, p *PaqueteContingencia) error {
	var cufd *infrasiat.CodigoVigente
	for _, d := range p.Documentos {
		if d.CUF != "" {
			continue
		}
		if cufd == nil {
			var err error
			cufd, err = o.autoridad.ObtenerCUFD(ctx, false)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSinConfiguracionFiscal, err)
			}
		}
		cuf, err := pkgsiat.GenerarCUF(&pkgsiat.ParametrosCUF{
			NIT:             o.cfg.NIT,
			FechaEmision:    d.FechaEmision,
			Sucursal:        d.Sucursal,
			Modalidad:       o.cfg.Modalidad,
			TipoEmision:     2, // fuera de línea
			TipoFactura:     1,
			DocumentoSector: o.cfg.DocumentoSector,
			NumeroFactura:   d.Secuencia,
			PuntoVenta:      d.PuntoVenta,
			CodigoControl:   cufd.CodigoControl,
		})
		if err != nil {
			return fmt.Errorf("calcular CUF del documento %s: %w", d.ID, err)
		}
		d.CUF = cuf
		d.CUFD = cufd.Codigo
		o.actualizar(ctx, d)
	}
	if p.CUFD == "" && cufd != nil {
		p.CUFD = cufd.Codigo
	}
	return nil
}

// obtenerCUIS consulta el código de sistema. Un CUIS fuera de su ventana de
// vigencia se usa igual en modo degradado (los ambientes de prueba no siempre
// tienen uno vigente); la falta total de CUIS sí es fatal para la pasada.
func (o *Orquestador) obtenerCUIS(ctx context.Context) (*infrasiat.CodigoVigente, error) {
	cuis, err := o.autoridad.ObtenerCUIS(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinConfiguracionFiscal, err)
	}
	if !cuis.Vigente(time.Now()) {
		o.log.Warn().
			Str("cuis", cuis.Codigo).
			Time("vigencia", cuis.FechaVigencia).
			Msg("CUIS fuera de vigencia; se continúa en modo degradado")
	}
	return cuis, nil
}

// esperarAsentamiento pausa entre envío y validación, respetando el contexto.
func (o *Orquestador) esperarAsentamiento(ctx context.Context) error {
	if o.cfg.EsperaValidacion <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.cfg.EsperaValidacion):
		return nil
	}
}

func (o *Orquestador) marcarEnviados(ctx context.Context, docs []*entity.DocumentoFiscal, recepcion, recepcionEvento string) {
	for _, d := range docs {
		d.Estado = entity.EstadoEnviada
		d.CodigoRecepcionPaquete = recepcion
		if recepcionEvento != "" {
			d.CodigoRecepcionEvento = recepcionEvento
		}
		o.actualizar(ctx, d)
	}
}

func (o *Orquestador) marcarPendientes(ctx context.Context, docs []*entity.DocumentoFiscal) {
	for _, d := range docs {
		if d.EsTerminal() {
			continue
		}
		d.Estado = entity.EstadoPendiente
		o.actualizar(ctx, d)
	}
}

func (o *Orquestador) actualizar(ctx context.Context, d *entity.DocumentoFiscal) {
	if err := o.docs.Update(ctx, d); err != nil {
		o.log.Error().Err(err).
			Str("documento", d.ID).
			Str("estado", d.Estado).
			Msg("no se pudo persistir el cambio de estado")
	}
}

// registrarIntento persiste la huella del intento en la bitácora solo-inserción.
func (o *Orquestador) registrarIntento(ctx context.Context, ref string, docs []*entity.DocumentoFiscal, res *ResultadoIntento) {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	intento := &entity.IntentoRegularizacion{
		PaqueteRef:      ref,
		DocumentoIDs:    ids,
		Exito:           res.Exito,
		CodigoRecepcion: res.CodigoRecepcion,
	}
	if res.Error != nil {
		intento.ErrorDetalle = res.Error.Error()
	}
	if err := o.intentos.Create(ctx, intento); err != nil {
		o.log.Error().Err(err).Str("paquete", ref).Msg("no se pudo registrar el intento de regularización")
	}
}

// cafcDelPaquete devuelve el CAFC del paquete (los documentos de un mismo
// paquete manual comparten rango); vacío para emisión computarizada.
func cafcDelPaquete(docs []*entity.DocumentoFiscal) string {
	for _, d := range docs {
		if d.CAFC != "" {
			return d.CAFC
		}
	}
	return ""
}

func unirMensajes(mensajes []infrasiat.Mensaje) string {
	partes := make([]string, 0, len(mensajes))
	for _, m := range mensajes {
		partes = append(partes, fmt.Sprintf("[%d] %s", m.Codigo, m.Descripcion))
	}
	return strings.Join(partes, "; ")
}
