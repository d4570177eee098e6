package siat

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/tu-usuario/cobranzas-siat/internal/domain/entity"
)

// PaqueteArchivo es el paquete listo para enviar: archivo comprimido, hash de
// integridad y cantidad de documentos. Ambos (archivo y hash) viajan al WS para
// verificación de integridad.
type PaqueteArchivo struct {
	Contenido []byte // tar.gz con un XML por documento, en orden posicional
	Hash      string // sha256 hex del contenido comprimido
	Cantidad  int
}

// ConstructorPaquetes serializa documentos fiscales al formato de paquete de la
// Autoridad: un XML por documento, empaquetados en tar y comprimidos con gzip.
type ConstructorPaquetes struct {
	nit         string
	razonSocial string
}

// NewConstructorPaquetes construye el servicio.
func NewConstructorPaquetes(nit, razonSocial string) *ConstructorPaquetes {
	return &ConstructorPaquetes{nit: nit, razonSocial: razonSocial}
}

// Construir genera el paquete. El orden de los documentos se preserva tal cual
// llega: la Autoridad correlaciona sus observaciones por posición dentro del
// archivo, así que reordenar aquí rompería la reconciliación.
func (b *ConstructorPaquetes) Construir(docs []*entity.DocumentoFiscal) (*PaqueteArchivo, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("siat: paquete sin documentos")
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for i, d := range docs {
		xmlBytes, err := b.construirXML(d)
		if err != nil {
			return nil, fmt.Errorf("siat: serializar documento %d (%s): %w", i, d.ID, err)
		}
		hdr := &tar.Header{
			Name: fmt.Sprintf("%s-%010d.xml", d.Tipo, d.Secuencia),
			Mode: 0o644,
			Size: int64(len(xmlBytes)),
			// ModTime fijo: el hash del paquete debe ser reproducible.
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("siat: tar header documento %d: %w", i, err)
		}
		if _, err := tw.Write(xmlBytes); err != nil {
			return nil, fmt.Errorf("siat: tar write documento %d: %w", i, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("siat: cerrar tar: %w", err)
	}

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("siat: comprimir paquete: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("siat: cerrar gzip: %w", err)
	}

	sum := sha256.Sum256(gzBuf.Bytes())
	return &PaqueteArchivo{
		Contenido: gzBuf.Bytes(),
		Hash:      hex.EncodeToString(sum[:]),
		Cantidad:  len(docs),
	}, nil
}

// construirXML genera el XML de un documento según el sector educativo.
func (b *ConstructorPaquetes) construirXML(d *entity.DocumentoFiscal) ([]byte, error) {
	if d.CUF == "" {
		return nil, fmt.Errorf("documento sin CUF")
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("facturaComputarizadaSectorEducativo")
	cab := root.CreateElement("cabecera")
	cab.CreateElement("nitEmisor").SetText(b.nit)
	cab.CreateElement("razonSocialEmisor").SetText(b.razonSocial)
	cab.CreateElement("numeroFactura").SetText(fmt.Sprintf("%d", d.Secuencia))
	cab.CreateElement("cuf").SetText(d.CUF)
	cab.CreateElement("cufd").SetText(d.CUFD)
	cab.CreateElement("codigoSucursal").SetText(fmt.Sprintf("%d", d.Sucursal))
	cab.CreateElement("codigoPuntoVenta").SetText(fmt.Sprintf("%d", d.PuntoVenta))
	cab.CreateElement("fechaEmision").SetText(d.FechaEmision.Format(formatoFecha))
	cab.CreateElement("montoTotal").SetText(d.Monto.Round(2).StringFixed(2))
	if d.CAFC != "" {
		cab.CreateElement("cafc").SetText(d.CAFC)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}
