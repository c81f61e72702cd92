package cfdis

import (
	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
)

// UseCase consultas y operación manual sobre comprobantes ya ingresados.
type UseCase struct {
	cfdiRepo repository.CfdiRepository
}

// NewUseCase construye el caso de uso de consulta.
func NewUseCase(cfdiRepo repository.CfdiRepository) *UseCase {
	return &UseCase{cfdiRepo: cfdiRepo}
}

// List devuelve una página de comprobantes del cliente, más recientes primero.
func (uc *UseCase) List(clientID string, page dto.PageRequest) (*dto.ListCfdisResponse, error) {
	page.DefaultPage()
	items, err := uc.cfdiRepo.List(clientID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	total, err := uc.cfdiRepo.Count(clientID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CfdiResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toResponse(c))
	}
	return &dto.ListCfdisResponse{
		Items: out,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

// GetByID devuelve el detalle con conceptos. ErrNotFound si el ID no existe o
// pertenece a otro cliente.
func (uc *UseCase) GetByID(clientID, id string) (*dto.CfdiDetailResponse, error) {
	c, err := uc.cfdiRepo.GetByID(clientID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	conceptos, err := uc.cfdiRepo.GetConceptosByCfdiID(c.ID)
	if err != nil {
		return nil, err
	}
	detail := &dto.CfdiDetailResponse{
		CfdiResponse:           toResponse(c),
		LugarExpedicion:        c.LugarExpedicion,
		TipoCambio:             c.TipoCambio,
		TotalImpTrasladados:    c.TotalImpuestosTrasladados,
		TotalImpRetenidos:      c.TotalImpuestosRetenidos,
		Conceptos:              make([]dto.CfdiConceptoResponse, 0, len(conceptos)),
		ValidacionSATRespuesta: c.ValidacionSATRespuesta,
	}
	for _, con := range conceptos {
		detail.Conceptos = append(detail.Conceptos, dto.CfdiConceptoResponse{
			ClaveProdServ: con.ClaveProdServ,
			ClaveUnidad:   con.ClaveUnidad,
			Unidad:        con.Unidad,
			Cantidad:      con.Cantidad,
			Descripcion:   con.Descripcion,
			ValorUnitario: con.ValorUnitario,
			Importe:       con.Importe,
			Descuento:     con.Descuento,
		})
	}
	return detail, nil
}

// UpdateEstatus asigna un estatus operativo manual (ej. en_revision tras una
// revisión humana). El estatus debe ser uno de los conocidos.
func (uc *UseCase) UpdateEstatus(clientID, id string, req dto.UpdateEstatusRequest) error {
	switch req.Estatus {
	case entity.ValidacionPendiente, entity.ValidacionValido,
		entity.ValidacionRechazado, entity.ValidacionEnRevision:
	default:
		return domain.ErrInvalidInput
	}
	return uc.cfdiRepo.UpdateEstatusManual(clientID, id, req.Estatus)
}

func toResponse(c *entity.Cfdi) dto.CfdiResponse {
	return dto.CfdiResponse{
		ID:                c.ID,
		UUID:              c.UUID,
		Version:           c.Version,
		TipoComprobante:   c.TipoComprobante,
		Serie:             c.Serie,
		Folio:             c.Folio,
		Fecha:             c.Fecha,
		EmisorRFC:         c.EmisorRFC,
		EmisorNombre:      c.EmisorNombre,
		ReceptorRFC:       c.ReceptorRFC,
		ReceptorNombre:    c.ReceptorNombre,
		Subtotal:          c.Subtotal,
		Descuento:         c.Descuento,
		Total:             c.Total,
		Moneda:            c.Moneda,
		MetodoPago:        c.MetodoPago,
		FormaPago:         c.FormaPago,
		XMLPath:           c.XMLPath,
		PDFPath:           c.PDFPath,
		EstatusValidacion: c.EstatusValidacion,
		ValidacionFecha:   c.ValidacionSATFecha,
		CreatedAt:         c.CreatedAt,
	}
}
