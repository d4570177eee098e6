package regularizacion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
	"github.com/tu-usuario/cobranzas-siat/pkg/logger"
)

type banco struct {
	docs      *memDocs
	intentos  *memIntentos
	eventos   *memEventos
	autoridad *fakeAutoridad
	orq       *Orquestador
}

func nuevoBanco(t *testing.T) *banco {
	t.Helper()
	b := &banco{
		docs:      &memDocs{},
		intentos:  &memIntentos{},
		eventos:   &memEventos{},
		autoridad: &fakeAutoridad{},
	}
	registrador := NewRegistradorEventos(b.eventos, b.autoridad, logger.Nop())
	b.orq = NewOrquestador(b.docs, b.intentos, registrador, b.autoridad, &fakeConstructor{}, ConfigOrquestador{
		NIT:             "1023456789",
		Modalidad:       2,
		DocumentoSector: 11,
		TipoDocumento:   1,
		// Sin espera en tests: la Autoridad guionada responde de inmediato.
		EsperaValidacion: 0,
	}, logger.Nop())
	return b
}

// sembrar persiste los documentos y arma el paquete tal como lo haría una pasada.
func (b *banco) sembrar(t *testing.T, docs ...*entity.DocumentoFiscal) *PaqueteContingencia {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, b.docs.Create(context.Background(), d))
	}
	paquetes := Agrupar(docs)
	require.Len(t, paquetes, 1)
	return paquetes[0]
}

func TestRegularizar_PaqueteValidadoCompleto(t *testing.T) {
	b := nuevoBanco(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	p := b.sembrar(t,
		docContingencia("a", 1, base),
		docContingencia("b", 2, base.Add(time.Minute)),
	)
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("VALIDADA")}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	assert.True(t, res.Exito)
	assert.False(t, res.Pendiente)
	assert.Equal(t, "REC-1", res.CodigoRecepcion)
	assert.ElementsMatch(t, []string{"a", "b"}, res.Regularizados)
	assert.Empty(t, res.Rechazados)

	assert.Equal(t, entity.EstadoValidada, b.docs.estado("a"))
	assert.Equal(t, entity.EstadoValidada, b.docs.estado("b"))

	// El envío llevó todo lo que la Autoridad exige.
	require.Len(t, b.autoridad.envios, 1)
	envio := b.autoridad.envios[0].solicitud
	assert.Equal(t, "CUIS-1", envio.CUIS)
	assert.Equal(t, "CUFD-V", envio.CUFD)
	assert.Equal(t, "abc123", envio.Hash)
	assert.Equal(t, 2, envio.Cantidad)
	assert.Equal(t, "5", envio.CodigoEvento)
	assert.Equal(t, "EV-1001", envio.CodigoRecepcionEvento)

	intentos, err := b.intentos.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, intentos, 1)
	assert.True(t, intentos[0].Exito)
	assert.Equal(t, p.Ref(), intentos[0].PaqueteRef)
	assert.Equal(t, []string{"a", "b"}, intentos[0].DocumentoIDs)
}

func TestRegularizar_ObservadaResuelvePorIndice(t *testing.T) {
	b := nuevoBanco(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	p := b.sembrar(t,
		docContingencia("a", 1, base),
		docContingencia("b", 2, base.Add(time.Minute)),
		docContingencia("c", 3, base.Add(2*time.Minute)),
	)
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("OBSERVADA",
		infrasiat.Mensaje{Indice: 1, Codigo: 319, Descripcion: "NIT del emisor no coincide"},
		infrasiat.Mensaje{Indice: 0, Codigo: infrasiat.CodigoYaRegistrada, Descripcion: "ya registrada"},
		infrasiat.Mensaje{Indice: 2, Codigo: 10, Descripcion: "aviso", Advertencia: true},
	)}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	// Aceptación parcial: el intento cuenta como éxito porque la Autoridad resolvió.
	assert.True(t, res.Exito)
	assert.ElementsMatch(t, []string{"a", "c"}, res.Regularizados)
	require.Contains(t, res.Rechazados, "b")
	assert.Contains(t, res.Rechazados["b"], "319")
	assert.Contains(t, res.Rechazados["b"], "NIT del emisor no coincide")

	// Solo el índice observado cae; el informativo 980 y la advertencia no rechazan.
	assert.Equal(t, entity.EstadoValidada, b.docs.estado("a"))
	assert.Equal(t, entity.EstadoRechazada, b.docs.estado("b"))
	assert.Equal(t, entity.EstadoValidada, b.docs.estado("c"))
}

func TestRegularizar_RechazoTotalConMensaje(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("RECHAZADA")}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	assert.False(t, res.Exito)
	assert.Empty(t, res.Regularizados)
	require.Contains(t, res.Rechazados, "a")
	assert.Equal(t, entity.EstadoRechazada, b.docs.estado("a"))
}

func TestRegularizar_FallaDeTransporteAlEnviar(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.respuestasEnvio = []respuestaOError{{err: errors.New("timeout")}}

	res := b.orq.Regularizar(context.Background(), p)

	require.Error(t, res.Error)
	assert.False(t, res.Exito)
	// Sin confirmación de la Autoridad los documentos no se tocan: el paquete
	// completo queda elegible para la próxima pasada.
	assert.Equal(t, entity.EstadoContingencia, b.docs.estado("a"))

	intentos, err := b.intentos.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, intentos, 1)
	assert.False(t, intentos[0].Exito)
	assert.Contains(t, intentos[0].ErrorDetalle, "timeout")
}

func TestRegularizar_RechazoExplicitoDelEnvio(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.respuestasEnvio = []respuestaOError{{resp: &infrasiat.RespuestaRecepcion{
		Transaccion:       false,
		CodigoDescripcion: "hash no coincide",
	}}}

	res := b.orq.Regularizar(context.Background(), p)

	var rechazo *RechazoEnvio
	require.ErrorAs(t, res.Error, &rechazo)
	assert.Contains(t, rechazo.Mensaje, "hash no coincide")
	assert.Equal(t, entity.EstadoContingencia, b.docs.estado("a"))
}

func TestRegularizar_ValidacionCaidaDejaPendienteYSeRevalida(t *testing.T) {
	b := nuevoBanco(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	p := b.sembrar(t,
		docContingencia("a", 1, base),
		docContingencia("b", 2, base.Add(time.Minute)),
	)
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{{err: errors.New("timeout")}}

	res := b.orq.Regularizar(context.Background(), p)

	// El paquete está en vuelo: los documentos esperan con su código de
	// recepción y jamás vuelven a CONTINGENCIA.
	require.Error(t, res.Error)
	assert.True(t, res.Pendiente)
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado("a"))
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado("b"))

	ctx := context.Background()
	pendientes, err := b.docs.ListByFiltro(ctx, repository.FiltroDocumentos{Estado: entity.EstadoPendiente})
	require.NoError(t, err)
	require.Len(t, pendientes, 2)
	assert.Equal(t, "REC-1", pendientes[0].CodigoRecepcionPaquete)

	// La revalidación resuelve con el código original, sin reenviar.
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("VALIDADA")}
	revalidaciones := AgruparRevalidacion(pendientes)
	require.Len(t, revalidaciones, 1)

	res2 := b.orq.Revalidar(ctx, revalidaciones[0])
	require.NoError(t, res2.Error)
	assert.True(t, res2.Exito)
	assert.Equal(t, entity.EstadoValidada, b.docs.estado("a"))
	assert.Equal(t, entity.EstadoValidada, b.docs.estado("b"))
	assert.Len(t, b.autoridad.envios, 1, "revalidar nunca reenvía el paquete")
}

func TestRegularizar_PendienteSinResolver(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("PENDIENTE")}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	assert.False(t, res.Exito)
	assert.True(t, res.Pendiente)
	assert.Equal(t, entity.EstadoPendiente, b.docs.estado("a"))
}

func TestRegularizar_EventoCaidoNoAbortaElPaquete(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.errEvento = errors.New("registro de eventos caido")
	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("VALIDADA")}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	assert.True(t, res.Exito)
	// El paquete declara el evento aunque no tenga código de recepción.
	require.Len(t, b.autoridad.envios, 1)
	assert.Equal(t, "5", b.autoridad.envios[0].solicitud.CodigoEvento)
	assert.Empty(t, b.autoridad.envios[0].solicitud.CodigoRecepcionEvento)
}

func TestRegularizar_SinCUISAbortaSinEfecto(t *testing.T) {
	b := nuevoBanco(t)
	p := b.sembrar(t, docContingencia("a", 1, time.Now().Add(-time.Hour)))
	b.autoridad.errCUIS = errors.New("sin configuracion")

	res := b.orq.Regularizar(context.Background(), p)

	require.ErrorIs(t, res.Error, ErrSinConfiguracionFiscal)
	assert.Equal(t, entity.EstadoContingencia, b.docs.estado("a"))
	assert.Empty(t, b.autoridad.envios)
}

func TestRegularizar_CompletaCUFDeEmisionManual(t *testing.T) {
	b := nuevoBanco(t)
	manual := docContingencia("m", 1, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	manual.TipoEmision = entity.EmisionManual
	manual.CAFC = "CAFC-77"
	manual.CUF = ""
	manual.CUFD = "" // emitido sin conectividad, sin código diario
	p := b.sembrar(t, manual)
	require.Empty(t, p.CUFD)

	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("VALIDADA")}

	res := b.orq.Regularizar(context.Background(), p)

	require.NoError(t, res.Error)
	assert.True(t, res.Exito)
	// El CUF se calculó en la regularización con el CUFD vigente.
	assert.NotEmpty(t, manual.CUF)
	assert.Equal(t, "CUFD-V", manual.CUFD)
	require.Len(t, b.autoridad.envios, 1)
	assert.Equal(t, "CUFD-V", b.autoridad.envios[0].solicitud.CUFD)
	assert.Equal(t, "CAFC-77", b.autoridad.envios[0].solicitud.CAFC)
}

// ─────────────────────────────────────────────────────────────────────────────
// Pasada completa
// ─────────────────────────────────────────────────────────────────────────────

func TestPasada_EscenarioCompleto(t *testing.T) {
	b := nuevoBanco(t)
	ctx := context.Background()
	base := time.Now().Add(-2 * time.Hour)

	// Dos documentos de una contingencia, uno de otra (evento distinto) y uno
	// que quedó PENDIENTE en una pasada anterior.
	a := docContingencia("a", 1, base)
	bb := docContingencia("b", 2, base.Add(time.Minute))
	c := docContingencia("c", 3, base.Add(2*time.Minute))
	c.CodigoEvento = "2"
	viejo := docContingencia("viejo", 9, base.Add(-time.Hour))
	viejo.Estado = entity.EstadoPendiente
	viejo.CodigoRecepcionPaquete = "REC-9"
	for _, d := range []*entity.DocumentoFiscal{a, bb, c, viejo} {
		require.NoError(t, b.docs.Create(ctx, d))
	}

	b.autoridad.respuestasEnvio = []respuestaOError{recepcionOK("REC-1")}
	b.autoridad.respuestasValidacion = []respuestaOError{validacion("VALIDADA")}

	programador := NewProgramador(NewAgregador(b.docs), b.orq, time.Minute, logger.Nop())
	resumen, err := programador.Pasada(ctx)
	require.NoError(t, err)

	// Dos paquetes de contingencia mas una revalidación.
	assert.Equal(t, 3, resumen.Paquetes)
	require.Len(t, resumen.Intentos, 3)
	for _, r := range resumen.Intentos {
		assert.True(t, r.Exito, "paquete %s", r.PaqueteRef)
	}

	for _, id := range []string{"a", "b", "c", "viejo"} {
		assert.Equal(t, entity.EstadoValidada, b.docs.estado(id), "documento %s", id)
	}
	// La revalidación no reenvió: solo los dos paquetes nuevos pasaron por recepción.
	assert.Len(t, b.autoridad.envios, 2)

	intentos, err := b.intentos.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, intentos, 3)
}
