package regularizacion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tu-usuario/cobranzas-siat/internal/domain"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/repository"
	infrasiat "github.com/tu-usuario/cobranzas-siat/internal/infrastructure/siat"
)

// ─────────────────────────────────────────────────────────────────────────────
// Repositorios en memoria
// ─────────────────────────────────────────────────────────────────────────────

type memDocs struct {
	mu   sync.Mutex
	seq  int
	docs []*entity.DocumentoFiscal
}

func (m *memDocs) Create(_ context.Context, doc *entity.DocumentoFiscal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%03d", m.seq)
	}
	copia := *doc
	m.docs = append(m.docs, &copia)
	return nil
}

func (m *memDocs) Update(_ context.Context, doc *entity.DocumentoFiscal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs {
		if d.ID == doc.ID {
			copia := *doc
			m.docs[i] = &copia
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memDocs) GetByID(_ context.Context, id string) (*entity.DocumentoFiscal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ID == id {
			copia := *d
			return &copia, nil
		}
	}
	return nil, nil
}

func (m *memDocs) ListByFiltro(_ context.Context, f repository.FiltroDocumentos) ([]*entity.DocumentoFiscal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.DocumentoFiscal
	for _, d := range m.docs {
		if d.Estado != f.Estado {
			continue
		}
		if f.Sucursal != nil && d.Sucursal != *f.Sucursal {
			continue
		}
		if f.PuntoVenta != nil && d.PuntoVenta != *f.PuntoVenta {
			continue
		}
		copia := *d
		out = append(out, &copia)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FechaEmision.Equal(out[j].FechaEmision) {
			return out[i].FechaEmision.Before(out[j].FechaEmision)
		}
		return out[i].Secuencia < out[j].Secuencia
	})
	return out, nil
}

func (m *memDocs) MaxSecuencia(_ context.Context, tipo string, gestion, sucursal int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, d := range m.docs {
		if d.Tipo == tipo && d.Gestion == gestion && d.Sucursal == sucursal && d.Secuencia > max {
			max = d.Secuencia
		}
	}
	return max, nil
}

func (m *memDocs) estado(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ID == id {
			return d.Estado
		}
	}
	return ""
}

type memEventos struct {
	mu      sync.Mutex
	eventos []*entity.EventoSignificativo
}

func (m *memEventos) Create(_ context.Context, ev *entity.EventoSignificativo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = fmt.Sprintf("ev-%03d", len(m.eventos)+1)
	copia := *ev
	m.eventos = append(m.eventos, &copia)
	return nil
}

func (m *memEventos) GetByContexto(_ context.Context, sucursal, puntoVenta int) (*entity.EventoSignificativo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.eventos) - 1; i >= 0; i-- {
		if m.eventos[i].Sucursal == sucursal && m.eventos[i].PuntoVenta == puntoVenta {
			copia := *m.eventos[i]
			return &copia, nil
		}
	}
	return nil, nil
}

type memIntentos struct {
	mu       sync.Mutex
	intentos []*entity.IntentoRegularizacion
}

func (m *memIntentos) Create(_ context.Context, intento *entity.IntentoRegularizacion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intento.ID = fmt.Sprintf("int-%03d", len(m.intentos)+1)
	intento.CreatedAt = time.Now()
	copia := *intento
	m.intentos = append(m.intentos, &copia)
	return nil
}

func (m *memIntentos) List(_ context.Context, limit int) ([]*entity.IntentoRegularizacion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.IntentoRegularizacion, 0, len(m.intentos))
	for i := len(m.intentos) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		copia := *m.intentos[i]
		out = append(out, &copia)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cliente de la Autoridad con respuestas guionadas
// ─────────────────────────────────────────────────────────────────────────────

type llamadaEnvio struct {
	solicitud *infrasiat.SolicitudEnvioPaquete
}

type fakeAutoridad struct {
	mu sync.Mutex

	errCUIS error
	errCUFD error

	// Guiones: cada llamada consume la siguiente entrada; la última se repite.
	respuestasEnvio      []respuestaOError
	respuestasValidacion []respuestaOError
	errEvento            error

	cufdFrescos    int
	eventos        []*infrasiat.SolicitudRegistroEvento
	envios         []llamadaEnvio
	validaciones   []*infrasiat.SolicitudValidacionPaquete
	ordenLlamadas  []string
	codigoEventoWS string
}

type respuestaOError struct {
	resp *infrasiat.RespuestaRecepcion
	err  error
}

func (f *fakeAutoridad) ObtenerCUIS(context.Context) (*infrasiat.CodigoVigente, error) {
	if f.errCUIS != nil {
		return nil, f.errCUIS
	}
	return &infrasiat.CodigoVigente{Codigo: "CUIS-1", FechaVigencia: time.Now().Add(24 * time.Hour)}, nil
}

func (f *fakeAutoridad) ObtenerCUFD(_ context.Context, fresco bool) (*infrasiat.CodigoVigente, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCUFD != nil {
		return nil, f.errCUFD
	}
	if fresco {
		f.cufdFrescos++
		f.ordenLlamadas = append(f.ordenLlamadas, "cufd-fresco")
		return &infrasiat.CodigoVigente{Codigo: fmt.Sprintf("CUFD-F%d", f.cufdFrescos), CodigoControl: "F1F2"}, nil
	}
	return &infrasiat.CodigoVigente{Codigo: "CUFD-V", CodigoControl: "A1B2"}, nil
}

func (f *fakeAutoridad) RegistrarEvento(_ context.Context, s *infrasiat.SolicitudRegistroEvento) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errEvento != nil {
		return "", f.errEvento
	}
	f.eventos = append(f.eventos, s)
	f.ordenLlamadas = append(f.ordenLlamadas, "registrar-evento")
	if f.codigoEventoWS == "" {
		f.codigoEventoWS = "EV-1001"
	}
	return f.codigoEventoWS, nil
}

func (f *fakeAutoridad) EnviarPaquete(_ context.Context, s *infrasiat.SolicitudEnvioPaquete) (*infrasiat.RespuestaRecepcion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envios = append(f.envios, llamadaEnvio{solicitud: s})
	f.ordenLlamadas = append(f.ordenLlamadas, "enviar-paquete")
	r := consumir(&f.respuestasEnvio)
	return r.resp, r.err
}

func (f *fakeAutoridad) ValidarPaquete(_ context.Context, s *infrasiat.SolicitudValidacionPaquete) (*infrasiat.RespuestaRecepcion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validaciones = append(f.validaciones, s)
	f.ordenLlamadas = append(f.ordenLlamadas, "validar-paquete")
	r := consumir(&f.respuestasValidacion)
	return r.resp, r.err
}

func consumir(guion *[]respuestaOError) respuestaOError {
	if len(*guion) == 0 {
		return respuestaOError{err: fmt.Errorf("guion agotado")}
	}
	r := (*guion)[0]
	if len(*guion) > 1 {
		*guion = (*guion)[1:]
	}
	return r
}

func recepcionOK(codigo string) respuestaOError {
	return respuestaOError{resp: &infrasiat.RespuestaRecepcion{
		Transaccion:       true,
		CodigoRecepcion:   codigo,
		CodigoDescripcion: "PENDIENTE",
	}}
}

func validacion(descripcion string, mensajes ...infrasiat.Mensaje) respuestaOError {
	return respuestaOError{resp: &infrasiat.RespuestaRecepcion{
		Transaccion:       true,
		CodigoRecepcion:   "REC-1",
		CodigoDescripcion: descripcion,
		Mensajes:          mensajes,
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Constructor de paquetes trivial
// ─────────────────────────────────────────────────────────────────────────────

type fakeConstructor struct {
	err error
}

func (f *fakeConstructor) Construir(docs []*entity.DocumentoFiscal) (*infrasiat.PaqueteArchivo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &infrasiat.PaqueteArchivo{
		Contenido: []byte("paquete"),
		Hash:      "abc123",
		Cantidad:  len(docs),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Documentos de prueba
// ─────────────────────────────────────────────────────────────────────────────

func docContingencia(id string, secuencia int64, emision time.Time) *entity.DocumentoFiscal {
	return &entity.DocumentoFiscal{
		ID:           id,
		Tipo:         entity.TipoRecibo,
		Gestion:      emision.Year(),
		Secuencia:    secuencia,
		Sucursal:     1,
		PuntoVenta:   0,
		FechaEmision: emision,
		TipoEmision:  entity.EmisionComputarizada,
		Estado:       entity.EstadoContingencia,
		CUF:          "CUF-" + id,
		CUFD:         "CUFD-V",
		CodigoEvento: "5",
	}
}
