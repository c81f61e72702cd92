package repository

import "github.com/coliman/portal-cfdi-api/internal/domain/entity"

// ClientRepository puerto de lectura de tenants.
type ClientRepository interface {
	GetByID(id string) (*entity.Client, error)
}
