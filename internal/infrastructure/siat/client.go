package siat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ── Constantes del WS ─────────────────────────────────────────────────────────

const (
	soapNS        = "http://schemas.xmlsoap.org/soap/envelope/"
	siatNS        = "https://siat.impuestos.gob.bo/"
	formatoFecha  = "2006-01-02T15:04:05.000"

	rutaCodigos     = "/FacturacionCodigos"
	rutaOperaciones = "/FacturacionOperaciones"
	rutaRecepcion   = "/ServicioFacturacionComputarizada"
)

// Config parámetros fijos del cliente SOAP.
type Config struct {
	EndpointBase    string // ej: https://pilotosiat.impuestos.gob.bo/v2
	Token           string // apikey asignada al sistema
	NIT             string
	CodigoSistema   string
	Ambiente        int // 1 = producción, 2 = piloto
	Modalidad       int // 2 = computarizada
	DocumentoSector int
	Sucursal        int
	PuntoVenta      int
}

// ClienteSOAP implementa ClienteAutoridad contra el WS SOAP del SIN.
// Usa net/http de la stdlib; no requiere librerías de terceros.
type ClienteSOAP struct {
	cfg        Config
	httpClient *http.Client

	// cufdVigente es el último CUFD emitido por la Autoridad para este punto de
	// venta. No es un cache de consulta: es el registro local del código diario
	// activo, que solo cambia cuando se solicita uno fresco.
	mu          sync.Mutex
	cufdVigente *CodigoVigente
}

var _ ClienteAutoridad = (*ClienteSOAP)(nil)

// NewClienteSOAP construye el cliente con un timeout de red corto (15 s): un
// WS que no responde se trata igual que una falla explícita de transporte.
func NewClienteSOAP(cfg Config) *ClienteSOAP {
	return &ClienteSOAP{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	XmlnsW  string   `xml:"xmlns:siat,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type solicitudCUIS struct {
	XMLName         xml.Name `xml:"siat:cuis"`
	CodigoAmbiente  int      `xml:"SolicitudCuis>codigoAmbiente"`
	CodigoSistema   string   `xml:"SolicitudCuis>codigoSistema"`
	NIT             string   `xml:"SolicitudCuis>nit"`
	CodigoModalidad int      `xml:"SolicitudCuis>codigoModalidad"`
	Sucursal        int      `xml:"SolicitudCuis>codigoSucursal"`
	PuntoVenta      int      `xml:"SolicitudCuis>codigoPuntoVenta"`
}

type solicitudCUFD struct {
	XMLName         xml.Name `xml:"siat:cufd"`
	CodigoAmbiente  int      `xml:"SolicitudCufd>codigoAmbiente"`
	CodigoSistema   string   `xml:"SolicitudCufd>codigoSistema"`
	NIT             string   `xml:"SolicitudCufd>nit"`
	CodigoModalidad int      `xml:"SolicitudCufd>codigoModalidad"`
	CUIS            string   `xml:"SolicitudCufd>cuis"`
	Sucursal        int      `xml:"SolicitudCufd>codigoSucursal"`
	PuntoVenta      int      `xml:"SolicitudCufd>codigoPuntoVenta"`
}

type solicitudEventoXML struct {
	XMLName              xml.Name `xml:"siat:registroEventoSignificativo"`
	CodigoAmbiente       int      `xml:"SolicitudEventoSignificativo>codigoAmbiente"`
	CodigoSistema        string   `xml:"SolicitudEventoSignificativo>codigoSistema"`
	NIT                  string   `xml:"SolicitudEventoSignificativo>nit"`
	CUIS                 string   `xml:"SolicitudEventoSignificativo>cuis"`
	CUFD                 string   `xml:"SolicitudEventoSignificativo>cufd"`
	CodigoMotivoEvento   string   `xml:"SolicitudEventoSignificativo>codigoMotivoEvento"`
	Descripcion          string   `xml:"SolicitudEventoSignificativo>descripcion"`
	FechaHoraInicio      string   `xml:"SolicitudEventoSignificativo>fechaHoraInicioEvento"`
	FechaHoraFin         string   `xml:"SolicitudEventoSignificativo>fechaHoraFinEvento"`
	Sucursal             int      `xml:"SolicitudEventoSignificativo>codigoSucursal"`
	PuntoVenta           int      `xml:"SolicitudEventoSignificativo>codigoPuntoVenta"`
}

type solicitudPaqueteXML struct {
	XMLName               xml.Name `xml:"siat:recepcionPaqueteFactura"`
	Archivo               string   `xml:"SolicitudServicioRecepcionPaquete>archivo"` // gzip en Base64
	CantidadFacturas      int      `xml:"SolicitudServicioRecepcionPaquete>cantidadFacturas"`
	CodigoAmbiente        int      `xml:"SolicitudServicioRecepcionPaquete>codigoAmbiente"`
	CodigoDocumentoSector int      `xml:"SolicitudServicioRecepcionPaquete>codigoDocumentoSector"`
	CodigoEmision         int      `xml:"SolicitudServicioRecepcionPaquete>codigoEmision"`
	CodigoModalidad       int      `xml:"SolicitudServicioRecepcionPaquete>codigoModalidad"`
	PuntoVenta            int      `xml:"SolicitudServicioRecepcionPaquete>codigoPuntoVenta"`
	CodigoSistema         string   `xml:"SolicitudServicioRecepcionPaquete>codigoSistema"`
	Sucursal              int      `xml:"SolicitudServicioRecepcionPaquete>codigoSucursal"`
	CUFD                  string   `xml:"SolicitudServicioRecepcionPaquete>cufd"`
	CUIS                  string   `xml:"SolicitudServicioRecepcionPaquete>cuis"`
	FechaEnvio            string   `xml:"SolicitudServicioRecepcionPaquete>fechaEnvio"`
	HashArchivo           string   `xml:"SolicitudServicioRecepcionPaquete>hashArchivo"`
	NIT                   string   `xml:"SolicitudServicioRecepcionPaquete>nit"`
	TipoFacturaDocumento  int      `xml:"SolicitudServicioRecepcionPaquete>tipoFacturaDocumento"`
	CAFC                  string   `xml:"SolicitudServicioRecepcionPaquete>cafc,omitempty"`
	CodigoEvento          string   `xml:"SolicitudServicioRecepcionPaquete>codigoEvento,omitempty"`
}

type solicitudValidacionXML struct {
	XMLName               xml.Name `xml:"siat:validacionRecepcionPaqueteFactura"`
	CodigoAmbiente        int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoAmbiente"`
	CodigoDocumentoSector int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoDocumentoSector"`
	CodigoEmision         int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoEmision"`
	CodigoModalidad       int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoModalidad"`
	PuntoVenta            int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoPuntoVenta"`
	CodigoSistema         string   `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoSistema"`
	Sucursal              int      `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoSucursal"`
	CUFD                  string   `xml:"SolicitudServicioValidacionRecepcionPaquete>cufd"`
	CUIS                  string   `xml:"SolicitudServicioValidacionRecepcionPaquete>cuis"`
	NIT                   string   `xml:"SolicitudServicioValidacionRecepcionPaquete>nit"`
	TipoFacturaDocumento  int      `xml:"SolicitudServicioValidacionRecepcionPaquete>tipoFacturaDocumento"`
	CodigoRecepcion       string   `xml:"SolicitudServicioValidacionRecepcionPaquete>codigoRecepcion"`
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type respuestaEnvelope struct {
	Body respuestaBody `xml:"Body"`
}

type respuestaBody struct {
	CUIS      *respuestaCodigo    `xml:"cuisResponse>RespuestaCuis"`
	CUFD      *respuestaCodigo    `xml:"cufdResponse>RespuestaCufd"`
	Evento    *respuestaEvento    `xml:"registroEventoSignificativoResponse>RespuestaListaEventos"`
	Paquete   *respuestaPaquete   `xml:"recepcionPaqueteFacturaResponse>RespuestaServicioFacturacion"`
	Valida    *respuestaPaquete   `xml:"validacionRecepcionPaqueteFacturaResponse>RespuestaServicioFacturacion"`
	Fault     *soapFault          `xml:"Fault"`
}

type respuestaCodigo struct {
	Codigo        string        `xml:"codigo"`
	CodigoControl string        `xml:"codigoControl"`
	FechaVigencia string        `xml:"fechaVigencia"`
	Transaccion   bool          `xml:"transaccion"`
	Mensajes      []mensajeXML  `xml:"mensajesList"`
}

type respuestaEvento struct {
	CodigoRecepcion string       `xml:"codigoRecepcionEventoSignificativo"`
	Transaccion     bool         `xml:"transaccion"`
	Mensajes        []mensajeXML `xml:"mensajesList"`
}

type respuestaPaquete struct {
	CodigoRecepcion   string       `xml:"codigoRecepcion"`
	CodigoEstado      int          `xml:"codigoEstado"`
	CodigoDescripcion string       `xml:"codigoDescripcion"`
	Transaccion       bool         `xml:"transaccion"`
	Mensajes          []mensajeXML `xml:"mensajesList"`
}

type mensajeXML struct {
	Indice      int    `xml:"indice"`
	Codigo      int    `xml:"codigo"`
	Descripcion string `xml:"descripcion"`
	Advertencia bool   `xml:"advertencia"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// ObtenerCUIS solicita el código de sistema. El WS devuelve el vigente si
// existe; si la fecha de vigencia ya pasó (sandboxes sin CUIS válido) el caller
// decide si continúa en modo degradado.
func (c *ClienteSOAP) ObtenerCUIS(ctx context.Context) (*CodigoVigente, error) {
	body := &solicitudCUIS{
		CodigoAmbiente:  c.cfg.Ambiente,
		CodigoSistema:   c.cfg.CodigoSistema,
		NIT:             c.cfg.NIT,
		CodigoModalidad: c.cfg.Modalidad,
		Sucursal:        c.cfg.Sucursal,
		PuntoVenta:      c.cfg.PuntoVenta,
	}
	resp, err := c.llamar(ctx, rutaCodigos, "cuis", body)
	if err != nil {
		return nil, err
	}
	if resp.Body.CUIS == nil {
		return nil, fmt.Errorf("siat: respuesta cuis vacía")
	}
	return codigoDesdeRespuesta(resp.Body.CUIS)
}

// ObtenerCUFD devuelve el código diario. fresco=true solicita uno nuevo al WS y
// lo deja como vigente; fresco=false devuelve el vigente conocido (o solicita
// el primero si aún no hay ninguno).
func (c *ClienteSOAP) ObtenerCUFD(ctx context.Context, fresco bool) (*CodigoVigente, error) {
	c.mu.Lock()
	vigente := c.cufdVigente
	c.mu.Unlock()
	if !fresco && vigente != nil && vigente.Vigente(time.Now()) {
		return vigente, nil
	}

	body := &solicitudCUFD{
		CodigoAmbiente:  c.cfg.Ambiente,
		CodigoSistema:   c.cfg.CodigoSistema,
		NIT:             c.cfg.NIT,
		CodigoModalidad: c.cfg.Modalidad,
		CUIS:            "",
		Sucursal:        c.cfg.Sucursal,
		PuntoVenta:      c.cfg.PuntoVenta,
	}
	if cuis, err := c.ObtenerCUIS(ctx); err == nil {
		body.CUIS = cuis.Codigo
	}

	resp, err := c.llamar(ctx, rutaCodigos, "cufd", body)
	if err != nil {
		return nil, err
	}
	if resp.Body.CUFD == nil {
		return nil, fmt.Errorf("siat: respuesta cufd vacía")
	}
	codigo, err := codigoDesdeRespuesta(resp.Body.CUFD)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cufdVigente = codigo
	c.mu.Unlock()
	return codigo, nil
}

// RegistrarEvento registra el evento significativo. El CUFD de la solicitud debe
// ser fresco: la Autoridad rechaza registros contra códigos diarios viejos.
func (c *ClienteSOAP) RegistrarEvento(ctx context.Context, s *SolicitudRegistroEvento) (string, error) {
	body := &solicitudEventoXML{
		CodigoAmbiente:     c.cfg.Ambiente,
		CodigoSistema:      c.cfg.CodigoSistema,
		NIT:                c.cfg.NIT,
		CUIS:               s.CUIS,
		CUFD:               s.CUFD,
		CodigoMotivoEvento: s.CodigoEvento,
		Descripcion:        s.Descripcion,
		FechaHoraInicio:    s.Inicio.Format(formatoFecha),
		FechaHoraFin:       s.Fin.Format(formatoFecha),
		Sucursal:           s.Sucursal,
		PuntoVenta:         s.PuntoVenta,
	}
	resp, err := c.llamar(ctx, rutaOperaciones, "registroEventoSignificativo", body)
	if err != nil {
		return "", err
	}
	ev := resp.Body.Evento
	if ev == nil {
		return "", fmt.Errorf("siat: respuesta de registro de evento vacía")
	}
	if !ev.Transaccion || ev.CodigoRecepcion == "" {
		return "", fmt.Errorf("siat: registro de evento rechazado: %s", unirMensajes(ev.Mensajes))
	}
	return ev.CodigoRecepcion, nil
}

// EnviarPaquete envía el paquete comprimido con su hash de integridad.
func (c *ClienteSOAP) EnviarPaquete(ctx context.Context, s *SolicitudEnvioPaquete) (*RespuestaRecepcion, error) {
	body := &solicitudPaqueteXML{
		Archivo:               base64.StdEncoding.EncodeToString(s.Archivo),
		CantidadFacturas:      s.Cantidad,
		CodigoAmbiente:        c.cfg.Ambiente,
		CodigoDocumentoSector: c.cfg.DocumentoSector,
		CodigoEmision:         2, // fuera de línea: todo paquete es contingencia
		CodigoModalidad:       c.cfg.Modalidad,
		PuntoVenta:            s.PuntoVenta,
		CodigoSistema:         c.cfg.CodigoSistema,
		Sucursal:              s.Sucursal,
		CUFD:                  s.CUFD,
		CUIS:                  s.CUIS,
		FechaEnvio:            time.Now().Format(formatoFecha),
		HashArchivo:           s.Hash,
		NIT:                   c.cfg.NIT,
		TipoFacturaDocumento:  s.TipoDocumento,
		CAFC:                  s.CAFC,
		CodigoEvento:          s.CodigoRecepcionEvento,
	}
	resp, err := c.llamar(ctx, rutaRecepcion, "recepcionPaqueteFactura", body)
	if err != nil {
		return nil, err
	}
	if resp.Body.Paquete == nil {
		return nil, fmt.Errorf("siat: respuesta de recepción de paquete vacía")
	}
	return recepcionDesdeRespuesta(resp.Body.Paquete), nil
}

// ValidarPaquete consulta el resultado de un envío previo con el mismo contexto fiscal.
func (c *ClienteSOAP) ValidarPaquete(ctx context.Context, s *SolicitudValidacionPaquete) (*RespuestaRecepcion, error) {
	body := &solicitudValidacionXML{
		CodigoAmbiente:        c.cfg.Ambiente,
		CodigoDocumentoSector: c.cfg.DocumentoSector,
		CodigoEmision:         2,
		CodigoModalidad:       c.cfg.Modalidad,
		PuntoVenta:            s.PuntoVenta,
		CodigoSistema:         c.cfg.CodigoSistema,
		Sucursal:              s.Sucursal,
		CUFD:                  s.CUFD,
		CUIS:                  s.CUIS,
		NIT:                   c.cfg.NIT,
		TipoFacturaDocumento:  s.TipoDocumento,
		CodigoRecepcion:       s.CodigoRecepcion,
	}
	resp, err := c.llamar(ctx, rutaRecepcion, "validacionRecepcionPaqueteFactura", body)
	if err != nil {
		return nil, err
	}
	if resp.Body.Valida == nil {
		return nil, fmt.Errorf("siat: respuesta de validación de paquete vacía")
	}
	return recepcionDesdeRespuesta(resp.Body.Valida), nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// llamar serializa el envelope, ejecuta el POST y desempaqueta la respuesta.
// Un timeout se trata igual que una falla explícita de transporte.
func (c *ClienteSOAP) llamar(ctx context.Context, ruta, operacion string, body interface{}) (*respuestaEnvelope, error) {
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		XmlnsW: siatNS,
		Body:   soapBody{Content: body},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("siat: serializar envelope %s: %w", operacion, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.EndpointBase+ruta, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("siat: crear request %s: %w", operacion, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", siatNS+operacion)
	if c.cfg.Token != "" {
		req.Header.Set("apikey", "TokenApi "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("siat: %s: timeout o cancelación: %w", operacion, ctx.Err())
		}
		return nil, fmt.Errorf("siat: %s: llamada HTTP fallida: %w", operacion, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("siat: %s: leer respuesta: %w", operacion, err)
	}

	var out respuestaEnvelope
	if err := xml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("siat: %s: respuesta SOAP malformada: %s", operacion, string(raw))
	}
	if out.Body.Fault != nil {
		return nil, fmt.Errorf("siat: %s: SOAP Fault [%s]: %s",
			operacion, out.Body.Fault.FaultCode, out.Body.Fault.FaultString)
	}
	return &out, nil
}

func codigoDesdeRespuesta(r *respuestaCodigo) (*CodigoVigente, error) {
	if !r.Transaccion || r.Codigo == "" {
		return nil, fmt.Errorf("siat: solicitud de código rechazada: %s", unirMensajes(r.Mensajes))
	}
	vigencia, err := time.Parse(formatoFecha, r.FechaVigencia)
	if err != nil {
		// Algunos ambientes devuelven la fecha con zona horaria.
		vigencia, err = time.Parse(time.RFC3339, r.FechaVigencia)
		if err != nil {
			vigencia = time.Time{}
		}
	}
	return &CodigoVigente{
		Codigo:        r.Codigo,
		CodigoControl: r.CodigoControl,
		FechaVigencia: vigencia,
	}, nil
}

func recepcionDesdeRespuesta(r *respuestaPaquete) *RespuestaRecepcion {
	out := &RespuestaRecepcion{
		Transaccion:       r.Transaccion,
		CodigoRecepcion:   r.CodigoRecepcion,
		CodigoEstado:      r.CodigoEstado,
		CodigoDescripcion: r.CodigoDescripcion,
	}
	for _, m := range r.Mensajes {
		out.Mensajes = append(out.Mensajes, Mensaje{
			Indice:      m.Indice,
			Codigo:      m.Codigo,
			Descripcion: m.Descripcion,
			Advertencia: m.Advertencia,
		})
	}
	return out
}

func unirMensajes(ms []mensajeXML) string {
	if len(ms) == 0 {
		return "sin detalle"
	}
	var b bytes.Buffer
	for i, m := range ms {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "[%d] %s", m.Codigo, m.Descripcion)
	}
	return b.String()
}
