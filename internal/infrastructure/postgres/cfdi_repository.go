package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
)

var _ repository.CfdiRepository = (*CfdiRepo)(nil)

// CfdiRepo implementación de CfdiRepository (usable con pool o tx).
type CfdiRepo struct {
	q Querier
}

// NewCfdiRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCfdiRepository(q Querier) *CfdiRepo {
	return &CfdiRepo{q: q}
}

const cfdiColumns = `
	id, client_id, uuid, version, tipo_comprobante, serie, folio, fecha,
	emisor_rfc, emisor_nombre, emisor_regimen,
	receptor_rfc, receptor_nombre, receptor_uso_cfdi,
	subtotal, descuento, total, moneda, tipo_cambio,
	total_impuestos_trasladados, total_impuestos_retenidos,
	metodo_pago, forma_pago, lugar_expedicion,
	xml_path, pdf_path, estatus_validacion,
	validacion_sat_fecha, validacion_sat_respuesta,
	created_at, updated_at`

// Create persiste la cabecera del comprobante. La constraint única
// (client_id, uuid) es la fuente de verdad del duplicado: una violación se
// traduce a domain.ErrDuplicateInvoice, igual que el pre-check.
func (r *CfdiRepo) Create(c *entity.Cfdi) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `
		INSERT INTO cfdis (` + cfdiColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
		        $27, $28, $29, $30, $31)`
	_, err := r.q.Exec(context.Background(), query,
		c.ID, c.ClientID, c.UUID, nullIfEmpty(c.Version), nullIfEmpty(c.TipoComprobante),
		nullIfEmpty(c.Serie), nullIfEmpty(c.Folio), c.Fecha,
		nullIfEmpty(c.EmisorRFC), nullIfEmpty(c.EmisorNombre), nullIfEmpty(c.EmisorRegimen),
		nullIfEmpty(c.ReceptorRFC), nullIfEmpty(c.ReceptorNombre), nullIfEmpty(c.ReceptorUsoCFDI),
		c.Subtotal, c.Descuento, c.Total, nullIfEmpty(c.Moneda), c.TipoCambio,
		c.TotalImpuestosTrasladados, c.TotalImpuestosRetenidos,
		nullIfEmpty(c.MetodoPago), nullIfEmpty(c.FormaPago), nullIfEmpty(c.LugarExpedicion),
		c.XMLPath, nullIfEmpty(c.PDFPath), c.EstatusValidacion,
		c.ValidacionSATFecha, nullIfEmpty(c.ValidacionSATRespuesta),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateInvoice
		}
		return fmt.Errorf("insert cfdi: %w", err)
	}
	return nil
}

// CreateConcepto persiste una línea de concepto.
func (r *CfdiRepo) CreateConcepto(con *entity.CfdiConcepto) error {
	if con.ID == "" {
		con.ID = uuid.New().String()
	}
	query := `
		INSERT INTO cfdi_conceptos (id, cfdi_id, clave_prod_serv, clave_unidad, unidad,
		                            cantidad, descripcion, valor_unitario, importe, descuento)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(context.Background(), query,
		con.ID, con.CfdiID, nullIfEmpty(con.ClaveProdServ), nullIfEmpty(con.ClaveUnidad),
		nullIfEmpty(con.Unidad), con.Cantidad, nullIfEmpty(con.Descripcion),
		con.ValorUnitario, con.Importe, con.Descuento,
	)
	if err != nil {
		return fmt.Errorf("insert concepto: %w", err)
	}
	return nil
}

// ExistsByUUID pre-check de duplicado dentro del scope del client.
func (r *CfdiRepo) ExistsByUUID(clientID, fiscalUUID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(context.Background(),
		`SELECT EXISTS(SELECT 1 FROM cfdis WHERE client_id = $1 AND uuid = $2)`,
		clientID, fiscalUUID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists cfdi: %w", err)
	}
	return exists, nil
}

// GetByID obtiene un comprobante por ID dentro del scope del client.
func (r *CfdiRepo) GetByID(clientID, id string) (*entity.Cfdi, error) {
	return r.getWhere(`id = $2`, clientID, id)
}

// GetByUUID obtiene un comprobante por folio fiscal dentro del scope del client.
func (r *CfdiRepo) GetByUUID(clientID, fiscalUUID string) (*entity.Cfdi, error) {
	return r.getWhere(`uuid = $2`, clientID, fiscalUUID)
}

func (r *CfdiRepo) getWhere(cond, clientID, arg string) (*entity.Cfdi, error) {
	query := `SELECT ` + cfdiColumns + ` FROM cfdis WHERE client_id = $1 AND ` + cond
	row := r.q.QueryRow(context.Background(), query, clientID, arg)
	c, err := scanCfdi(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cfdi: %w", err)
	}
	return c, nil
}

// GetConceptosByCfdiID obtiene las líneas en orden de inserción (= orden del documento).
func (r *CfdiRepo) GetConceptosByCfdiID(cfdiID string) ([]*entity.CfdiConcepto, error) {
	query := `
		SELECT id, cfdi_id, COALESCE(clave_prod_serv, ''), COALESCE(clave_unidad, ''),
		       COALESCE(unidad, ''), cantidad, COALESCE(descripcion, ''),
		       valor_unitario, importe, descuento
		FROM cfdi_conceptos WHERE cfdi_id = $1 ORDER BY id`
	rows, err := r.q.Query(context.Background(), query, cfdiID)
	if err != nil {
		return nil, fmt.Errorf("list conceptos: %w", err)
	}
	defer rows.Close()
	var list []*entity.CfdiConcepto
	for rows.Next() {
		var c entity.CfdiConcepto
		if err := rows.Scan(&c.ID, &c.CfdiID, &c.ClaveProdServ, &c.ClaveUnidad, &c.Unidad,
			&c.Cantidad, &c.Descripcion, &c.ValorUnitario, &c.Importe, &c.Descuento); err != nil {
			return nil, fmt.Errorf("scan concepto: %w", err)
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// List devuelve los comprobantes del client, más recientes primero.
func (r *CfdiRepo) List(clientID string, limit, offset int) ([]*entity.Cfdi, error) {
	query := `SELECT ` + cfdiColumns + `
		FROM cfdis WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(context.Background(), query, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cfdis: %w", err)
	}
	defer rows.Close()
	var list []*entity.Cfdi
	for rows.Next() {
		c, err := scanCfdi(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cfdi: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Count total de comprobantes del client.
func (r *CfdiRepo) Count(clientID string) (int, error) {
	var total int
	err := r.q.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM cfdis WHERE client_id = $1`, clientID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count cfdis: %w", err)
	}
	return total, nil
}

// UpdateValidacion escribe el resultado de la consulta al SAT por folio fiscal.
func (r *CfdiRepo) UpdateValidacion(clientID, fiscalUUID, estatus, respuesta string, fecha time.Time) error {
	query := `
		UPDATE cfdis
		SET estatus_validacion = $3,
		    validacion_sat_fecha = $4,
		    validacion_sat_respuesta = $5,
		    updated_at = $4
		WHERE client_id = $1 AND uuid = $2`
	tag, err := r.q.Exec(context.Background(), query, clientID, fiscalUUID, estatus, fecha, respuesta)
	if err != nil {
		return fmt.Errorf("update validacion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateEstatusManual asigna un estatus operativo por ID (ej. en_revision).
func (r *CfdiRepo) UpdateEstatusManual(clientID, id, estatus string) error {
	tag, err := r.q.Exec(context.Background(),
		`UPDATE cfdis SET estatus_validacion = $3, updated_at = NOW() WHERE client_id = $1 AND id = $2`,
		clientID, id, estatus)
	if err != nil {
		return fmt.Errorf("update estatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanCfdi mapea una fila con cfdiColumns a la entidad.
func scanCfdi(row pgx.Row) (*entity.Cfdi, error) {
	var c entity.Cfdi
	var version, tipo, serie, folio *string
	var emisorRFC, emisorNombre, emisorRegimen *string
	var receptorRFC, receptorNombre, receptorUso *string
	var moneda, metodoPago, formaPago, lugar, pdfPath, respuesta *string
	err := row.Scan(
		&c.ID, &c.ClientID, &c.UUID, &version, &tipo, &serie, &folio, &c.Fecha,
		&emisorRFC, &emisorNombre, &emisorRegimen,
		&receptorRFC, &receptorNombre, &receptorUso,
		&c.Subtotal, &c.Descuento, &c.Total, &moneda, &c.TipoCambio,
		&c.TotalImpuestosTrasladados, &c.TotalImpuestosRetenidos,
		&metodoPago, &formaPago, &lugar,
		&c.XMLPath, &pdfPath, &c.EstatusValidacion,
		&c.ValidacionSATFecha, &respuesta,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Version = derefStr(version)
	c.TipoComprobante = derefStr(tipo)
	c.Serie = derefStr(serie)
	c.Folio = derefStr(folio)
	c.EmisorRFC = derefStr(emisorRFC)
	c.EmisorNombre = derefStr(emisorNombre)
	c.EmisorRegimen = derefStr(emisorRegimen)
	c.ReceptorRFC = derefStr(receptorRFC)
	c.ReceptorNombre = derefStr(receptorNombre)
	c.ReceptorUsoCFDI = derefStr(receptorUso)
	c.Moneda = derefStr(moneda)
	c.MetodoPago = derefStr(metodoPago)
	c.FormaPago = derefStr(formaPago)
	c.LugarExpedicion = derefStr(lugar)
	c.PDFPath = derefStr(pdfPath)
	c.ValidacionSATRespuesta = derefStr(respuesta)
	return &c, nil
}
