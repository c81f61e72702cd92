package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/cfdi"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/archive"
)

// Estatus por item del ledger de ingesta.
const (
	StatusSuccess     = "success"
	StatusDuplicate   = "duplicate"
	StatusParseError  = "parse-error"
	StatusUnsupported = "unsupported-format"
	StatusError       = "error"
)

// IncomingFile es un archivo recibido en el batch, tal cual llegó.
type IncomingFile struct {
	Name    string
	Content []byte
}

// UseCase orquesta la ingesta: desempaqueta, parsea, guarda archivos y
// persiste comprobantes. Un item fallido nunca aborta el resto del batch.
type UseCase struct {
	cfdiRepo        repository.CfdiRepository
	tx              TxRunner
	store           FileStore
	unpacker        Unpacker
	log             zerolog.Logger
	reportOrphanPDF bool
}

// NewUseCase construye el orquestador de ingesta.
func NewUseCase(cfdiRepo repository.CfdiRepository, tx TxRunner, store FileStore,
	unpacker Unpacker, log zerolog.Logger, reportOrphanPDF bool) *UseCase {
	return &UseCase{
		cfdiRepo:        cfdiRepo,
		tx:              tx,
		store:           store,
		unpacker:        unpacker,
		log:             log,
		reportOrphanPDF: reportOrphanPDF,
	}
}

// UploadBatch procesa un batch de archivos (XML sueltos, pares XML+PDF y
// comprimidos) y devuelve un ledger con un renglón por archivo lógico, en el
// orden en que se recibieron. Un batch vacío es ErrInvalidInput.
func (uc *UseCase) UploadBatch(ctx context.Context, clientID string, files []IncomingFile) (*dto.UploadResponse, error) {
	if len(files) == 0 {
		return nil, domain.ErrInvalidInput
	}

	resp := &dto.UploadResponse{
		Results:      []dto.UploadItemResult{},
		ErrorsDetail: []dto.UploadItemError{},
	}

	// Los PDF sueltos del batch se emparejan con el XML del mismo nombre base.
	directPDFs := indexDirectPDFs(files)
	consumed := map[string]bool{}

	for _, f := range files {
		switch {
		case archive.IsCompressed(f.Name):
			uc.processArchive(ctx, clientID, f, resp)

		case hasExt(f.Name, ".xml"):
			pair := archive.FilePair{XMLName: f.Name, XML: f.Content}
			if pdf, ok := directPDFs[baseKey(f.Name)]; ok {
				pair.PDFName = pdf.Name
				pair.PDF = pdf.Content
				consumed[baseKey(f.Name)] = true
			}
			uc.processPair(ctx, clientID, f.Name, pair, resp)

		case hasExt(f.Name, ".pdf"):
			// Se resuelve al final: puede ser compañero de un XML del batch.

		default:
			addError(resp, f.Name, StatusUnsupported,
				domain.ErrUnsupportedFormat.Error()+" (se aceptan xml, pdf, zip, rar, 7z)")
		}
	}

	// PDFs del batch que ningún XML reclamó. A diferencia del huérfano dentro
	// de un comprimido, el PDF subido directo siempre deja renglón en el
	// ledger: cada archivo del batch tiene exactamente un desenlace.
	for _, f := range files {
		if hasExt(f.Name, ".pdf") && !consumed[baseKey(f.Name)] {
			addError(resp, f.Name, StatusUnsupported,
				domain.ErrUnsupportedFormat.Error()+": PDF sin XML del mismo nombre base")
		}
	}

	// total_files cuenta los archivos recibidos, no los renglones del ledger:
	// un comprimido de N facturas sigue siendo un archivo subido.
	resp.TotalFiles = len(files)
	return resp, nil
}

// processArchive desempaqueta un comprimido y procesa cada par extraído con
// nombre calificado "comprimido > interno".
func (uc *UseCase) processArchive(ctx context.Context, clientID string, f IncomingFile, resp *dto.UploadResponse) {
	result := uc.unpacker.Extract(f.Content, f.Name)
	if len(result.Pairs) == 0 && len(result.OrphanPDFs) == 0 {
		addError(resp, f.Name, StatusParseError, domain.ErrExtractionEmpty.Error())
		return
	}
	for _, pair := range result.Pairs {
		qualified := f.Name + " > " + pair.XMLName
		uc.processPair(ctx, clientID, qualified, pair, resp)
	}
	for _, orphan := range result.OrphanPDFs {
		uc.reportOrphan(resp, f.Name+" > "+orphan)
	}
}

// processPair ejecuta el pipeline de un comprobante: parseo, duplicado,
// archivos y persistencia. Siempre agrega exactamente un renglón al ledger.
func (uc *UseCase) processPair(ctx context.Context, clientID, qualifiedName string, pair archive.FilePair, resp *dto.UploadResponse) {
	if len(pair.XML) == 0 {
		addError(resp, qualifiedName, StatusParseError, "archivo vacío")
		return
	}

	comp, err := cfdi.Parse(pair.XML)
	if err != nil {
		addError(resp, qualifiedName, StatusParseError, domain.ErrMalformedDocument.Error()+": "+err.Error())
		return
	}
	if !cfdi.ValidUUID(comp.UUID) {
		addError(resp, qualifiedName, StatusParseError, domain.ErrMissingUUID.Error())
		return
	}
	// El folio fiscal se normaliza a mayúsculas: la unicidad por cliente no
	// distingue mayúsculas/minúsculas.
	comp.UUID = strings.ToUpper(comp.UUID)

	// Pre-check consultivo; la constraint única en BD es la fuente de verdad.
	exists, err := uc.cfdiRepo.ExistsByUUID(clientID, comp.UUID)
	if err != nil {
		uc.log.Error().Err(err).Str("archivo", qualifiedName).Msg("consulta de duplicado falló")
		addError(resp, qualifiedName, StatusError, "error interno al verificar duplicado")
		return
	}
	if exists {
		uc.addDuplicate(resp, qualifiedName, comp.UUID)
		return
	}

	xmlPath, pdfPath, err := uc.saveFiles(comp.UUID, pair)
	if err != nil {
		uc.log.Error().Err(err).Str("archivo", qualifiedName).Msg("guardar archivos falló")
		addError(resp, qualifiedName, StatusError, "error interno al guardar archivos")
		return
	}

	err = uc.tx.Run(ctx, func(repo repository.CfdiRepository) error {
		c := toEntity(clientID, comp, xmlPath, pdfPath)
		if err := repo.Create(c); err != nil {
			return err
		}
		for _, con := range comp.Conceptos {
			if err := repo.CreateConcepto(&entity.CfdiConcepto{
				CfdiID:        c.ID,
				ClaveProdServ: con.ClaveProdServ,
				ClaveUnidad:   con.ClaveUnidad,
				Unidad:        con.Unidad,
				Cantidad:      con.Cantidad,
				Descripcion:   con.Descripcion,
				ValorUnitario: con.ValorUnitario,
				Importe:       con.Importe,
				Descuento:     con.Descuento,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Los archivos de un comprobante no persistido no deben quedar en disco.
		uc.removeFiles(xmlPath, pdfPath)
		if errors.Is(err, domain.ErrDuplicateInvoice) {
			uc.addDuplicate(resp, qualifiedName, comp.UUID)
			return
		}
		uc.log.Error().Err(err).Str("archivo", qualifiedName).Str("uuid", comp.UUID).Msg("persistir comprobante falló")
		addError(resp, qualifiedName, StatusError, "error interno al persistir comprobante")
		return
	}

	uc.log.Info().Str("uuid", comp.UUID).Str("cliente", clientID).Str("archivo", qualifiedName).Msg("comprobante ingresado")
	resp.Success++
	resp.Results = append(resp.Results, dto.UploadItemResult{
		Filename: qualifiedName,
		UUID:     comp.UUID,
		Status:   StatusSuccess,
		Path:     xmlPath,
		PDFPath:  pdfPath,
	})
}

// saveFiles guarda XML (y PDF si hay) con nombre prefijado por el folio
// fiscal: dos emisores pueden mandar "factura.xml" el mismo día.
func (uc *UseCase) saveFiles(fiscalUUID string, pair archive.FilePair) (string, string, error) {
	xmlName := fiscalUUID + "_" + filepath.Base(pair.XMLName)
	if len(pair.PDF) == 0 {
		xmlPath, err := uc.store.SaveXML(xmlName, pair.XML)
		return xmlPath, "", err
	}
	pdfName := fiscalUUID + "_" + filepath.Base(pair.PDFName)
	return uc.store.SavePair(xmlName, pair.XML, pdfName, pair.PDF)
}

func (uc *UseCase) removeFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := uc.store.Remove(p); err != nil {
			uc.log.Warn().Err(err).Str("ruta", p).Msg("no se pudo limpiar archivo")
		}
	}
}

func (uc *UseCase) addDuplicate(resp *dto.UploadResponse, name, fiscalUUID string) {
	resp.Errors++
	resp.Results = append(resp.Results, dto.UploadItemResult{
		Filename: name,
		UUID:     fiscalUUID,
		Status:   StatusDuplicate,
	})
	resp.ErrorsDetail = append(resp.ErrorsDetail, dto.UploadItemError{
		Filename: name,
		Error:    "UUID " + fiscalUUID + " ya registrado para este cliente",
	})
}

// reportOrphan resuelve un PDF huérfano encontrado dentro de un comprimido:
// por defecto se descarta en silencio; con reportOrphanPDF deja renglón.
func (uc *UseCase) reportOrphan(resp *dto.UploadResponse, name string) {
	if !uc.reportOrphanPDF {
		uc.log.Debug().Str("archivo", name).Msg("PDF sin XML compañero, ignorado")
		return
	}
	addError(resp, name, StatusUnsupported,
		domain.ErrUnsupportedFormat.Error()+": PDF sin XML del mismo nombre base")
}

func addError(resp *dto.UploadResponse, name, status, detail string) {
	resp.Errors++
	resp.Results = append(resp.Results, dto.UploadItemResult{Filename: name, Status: status})
	resp.ErrorsDetail = append(resp.ErrorsDetail, dto.UploadItemError{Filename: name, Error: detail})
}

func toEntity(clientID string, comp *cfdi.Comprobante, xmlPath, pdfPath string) *entity.Cfdi {
	now := time.Now()
	return &entity.Cfdi{
		ID:                        uuid.New().String(),
		ClientID:                  clientID,
		UUID:                      comp.UUID,
		Version:                   comp.Version,
		TipoComprobante:           comp.TipoComprobante,
		Serie:                     comp.Serie,
		Folio:                     comp.Folio,
		Fecha:                     comp.Fecha,
		EmisorRFC:                 comp.EmisorRFC,
		EmisorNombre:              comp.EmisorNombre,
		EmisorRegimen:             comp.EmisorRegimen,
		ReceptorRFC:               comp.ReceptorRFC,
		ReceptorNombre:            comp.ReceptorNombre,
		ReceptorUsoCFDI:           comp.ReceptorUsoCFDI,
		Subtotal:                  comp.Subtotal,
		Descuento:                 comp.Descuento,
		Total:                     comp.Total,
		Moneda:                    comp.Moneda,
		TipoCambio:                comp.TipoCambio,
		TotalImpuestosTrasladados: comp.TotalImpuestosTrasladados,
		TotalImpuestosRetenidos:   comp.TotalImpuestosRetenidos,
		MetodoPago:                comp.MetodoPago,
		FormaPago:                 comp.FormaPago,
		LugarExpedicion:           comp.LugarExpedicion,
		XMLPath:                   xmlPath,
		PDFPath:                   pdfPath,
		EstatusValidacion:         entity.ValidacionPendiente,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// indexDirectPDFs agrupa los PDF sueltos del batch por nombre base, para
// emparejarlos con el XML del mismo nombre.
func indexDirectPDFs(files []IncomingFile) map[string]IncomingFile {
	out := map[string]IncomingFile{}
	for _, f := range files {
		if hasExt(f.Name, ".pdf") {
			out[baseKey(f.Name)] = f
		}
	}
	return out
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// baseKey normaliza el nombre base (sin extensión, case-insensitive).
func baseKey(name string) string {
	base := filepath.Base(name)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
