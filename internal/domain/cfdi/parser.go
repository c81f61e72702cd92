// Package cfdi extrae los campos fiscales de un CFDI (Comprobante Fiscal
// Digital por Internet) a partir de sus bytes XML. La extracción es tipada y
// se resuelve por URI de namespace, no por prefijo: un CFDI con prefijos no
// convencionales (o sin prefijo) se parsea igual.
package cfdi

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/coliman/portal-cfdi-api/internal/domain"
)

// Namespaces oficiales del SAT. El timbre fiscal comparte namespace entre
// versiones del comprobante; el namespace del comprobante cambia por versión.
const (
	NsCfdi40 = "http://www.sat.gob.mx/cfd/4"
	NsCfdi33 = "http://www.sat.gob.mx/cfd/3"
	NsTfd    = "http://www.sat.gob.mx/TimbreFiscalDigital"
)

// fechaLayout es el formato de fecha del atributo Fecha (Anexo 20 del SAT).
const fechaLayout = "2006-01-02T15:04:05"

// uuidPattern valida el formato del folio fiscal asignado por el PAC
// (8-4-4-4-12 hexadecimal).
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidUUID reporta si s cumple el formato de folio fiscal del SAT.
func ValidUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// Comprobante es el registro plano extraído de un CFDI. Los campos ausentes
// quedan en su valor cero: la ausencia de timbre, emisor o receptor no es un
// error de parseo (un comprobante sin timbrar es XML legítimo); quien decide
// si el UUID es obligatorio es el orquestador de ingesta.
type Comprobante struct {
	UUID            string
	Version         string
	TipoComprobante string
	Serie           string
	Folio           string
	Fecha           time.Time

	EmisorRFC     string
	EmisorNombre  string
	EmisorRegimen string

	ReceptorRFC     string
	ReceptorNombre  string
	ReceptorUsoCFDI string

	Subtotal   decimal.Decimal
	Descuento  decimal.Decimal
	Total      decimal.Decimal
	Moneda     string
	TipoCambio decimal.Decimal

	TotalImpuestosTrasladados decimal.Decimal
	TotalImpuestosRetenidos   decimal.Decimal

	MetodoPago      string
	FormaPago       string
	LugarExpedicion string

	Conceptos []Concepto
}

// Concepto es una línea del nodo cfdi:Conceptos, en orden de documento.
type Concepto struct {
	ClaveProdServ string
	ClaveUnidad   string
	Unidad        string
	Cantidad      decimal.Decimal
	Descripcion   string
	ValorUnitario decimal.Decimal
	Importe       decimal.Decimal
	Descuento     decimal.Decimal
}

// Parse extrae los campos fiscales del XML. Retorna ErrMalformedDocument
// (envuelto) únicamente si los bytes no son XML well-formed; cualquier otro
// faltante produce campos vacíos o cero, nunca error.
func Parse(xmlBytes []byte) (*Comprobante, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: documento vacío", domain.ErrMalformedDocument)
	}

	c := &Comprobante{
		Version:         attr(root, "Version"),
		TipoComprobante: attr(root, "TipoDeComprobante"),
		Serie:           attr(root, "Serie"),
		Folio:           attr(root, "Folio"),
		Subtotal:        attrDecimal(root, "SubTotal"),
		Descuento:       attrDecimal(root, "Descuento"),
		Total:           attrDecimal(root, "Total"),
		Moneda:          attr(root, "Moneda"),
		TipoCambio:      attrDecimal(root, "TipoCambio"),
		MetodoPago:      attr(root, "MetodoPago"),
		FormaPago:       attr(root, "FormaPago"),
		LugarExpedicion: attr(root, "LugarExpedicion"),
	}
	if c.Version == "" {
		// CFDI 3.3 usa "version" en minúscula en algunos emisores antiguos
		c.Version = attr(root, "version")
	}
	if f, err := time.Parse(fechaLayout, attr(root, "Fecha")); err == nil {
		c.Fecha = f
	}

	// Timbre fiscal: fuente del folio fiscal (UUID). Puede no existir.
	if timbre := findByNS(root, NsTfd, "TimbreFiscalDigital"); timbre != nil {
		c.UUID = attr(timbre, "UUID")
	}

	if emisor := findCfdi(root, "Emisor"); emisor != nil {
		c.EmisorRFC = attr(emisor, "Rfc")
		c.EmisorNombre = attr(emisor, "Nombre")
		c.EmisorRegimen = attr(emisor, "RegimenFiscal")
	}
	if receptor := findCfdi(root, "Receptor"); receptor != nil {
		c.ReceptorRFC = attr(receptor, "Rfc")
		c.ReceptorNombre = attr(receptor, "Nombre")
		c.ReceptorUsoCFDI = attr(receptor, "UsoCFDI")
	}
	if impuestos := findCfdi(root, "Impuestos"); impuestos != nil {
		c.TotalImpuestosTrasladados = attrDecimal(impuestos, "TotalImpuestosTrasladados")
		c.TotalImpuestosRetenidos = attrDecimal(impuestos, "TotalImpuestosRetenidos")
	}

	// Conceptos en orden de documento: es el orden de presentación aguas abajo.
	for _, el := range findAllCfdi(root, "Concepto") {
		c.Conceptos = append(c.Conceptos, Concepto{
			ClaveProdServ: attr(el, "ClaveProdServ"),
			ClaveUnidad:   attr(el, "ClaveUnidad"),
			Unidad:        attr(el, "Unidad"),
			Cantidad:      attrDecimal(el, "Cantidad"),
			Descripcion:   attr(el, "Descripcion"),
			ValorUnitario: attrDecimal(el, "ValorUnitario"),
			Importe:       attrDecimal(el, "Importe"),
			Descuento:     attrDecimal(el, "Descuento"),
		})
	}
	return c, nil
}

// attr devuelve el valor del atributo o "" si no existe.
func attr(el *etree.Element, key string) string {
	return el.SelectAttrValue(key, "")
}

// attrDecimal parsea un atributo monetario/cantidad con default cero cuando
// falta o no es numérico. Los conceptos pueden omitir legítimamente campos
// opcionales de impuestos y descuentos; nunca se propaga error por eso.
func attrDecimal(el *etree.Element, key string) decimal.Decimal {
	v := el.SelectAttrValue(key, "")
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// isCfdiNS reporta si el URI corresponde a un namespace de comprobante
// soportado (3.3 o 4.0). Añadir una versión nueva es agregar una constante.
func isCfdiNS(uri string) bool {
	return uri == NsCfdi40 || uri == NsCfdi33
}

// findByNS busca en profundidad el primer descendiente con el tag y namespace
// dados (URI resuelto, no prefijo).
func findByNS(el *etree.Element, ns, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == ns {
			return child
		}
		if found := findByNS(child, ns, tag); found != nil {
			return found
		}
	}
	return nil
}

func findCfdi(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag && isCfdiNS(child.NamespaceURI()) {
			return child
		}
		if found := findCfdi(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// findAllCfdi colecta todos los descendientes con el tag dado en namespace
// cfdi, en orden de documento.
func findAllCfdi(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag && isCfdiNS(child.NamespaceURI()) {
			out = append(out, child)
		}
		out = append(out, findAllCfdi(child, tag)...)
	}
	return out
}

// charsetReader soporta CFDIs emitidos en ISO-8859-1 / Windows-1252 (PACs
// antiguos); todo lo demás se asume UTF-8.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", charset)
	}
}
