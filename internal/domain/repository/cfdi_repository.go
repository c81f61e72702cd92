package repository

import (
	"time"

	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
)

// CfdiRepository define el puerto de persistencia para comprobantes y sus
// conceptos. La unicidad se enforce en el store sobre (client_id, uuid): el
// pre-check ExistsByUUID es solo un atajo barato, la fuente de verdad es la
// violación de constraint que Create traduce a ErrDuplicateInvoice.
type CfdiRepository interface {
	// Create persiste la cabecera. Retorna domain.ErrDuplicateInvoice si ya
	// existe (client_id, uuid), también bajo carrera con otro batch.
	Create(c *entity.Cfdi) error
	CreateConcepto(con *entity.CfdiConcepto) error

	// ExistsByUUID verifica el duplicado dentro del scope del client.
	ExistsByUUID(clientID, uuid string) (bool, error)

	GetByID(clientID, id string) (*entity.Cfdi, error)
	GetByUUID(clientID, uuid string) (*entity.Cfdi, error)
	GetConceptosByCfdiID(cfdiID string) ([]*entity.CfdiConcepto, error)
	List(clientID string, limit, offset int) ([]*entity.Cfdi, error)
	Count(clientID string) (int, error)

	// UpdateValidacion escribe el resultado de la consulta al SAT. Solo se
	// llama con un estatus mapeado definitivo; un fallo de transporte nunca
	// llega aquí.
	UpdateValidacion(clientID, uuid, estatus, respuesta string, fecha time.Time) error
	// UpdateEstatusManual asigna un estatus operativo (ej. en_revision).
	UpdateEstatusManual(clientID, id, estatus string) error
}
