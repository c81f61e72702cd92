package repository

import "github.com/coliman/portal-cfdi-api/internal/domain/entity"

// UserRepository puerto mínimo de usuarios: el portal solo autentica; la
// gestión de cuentas vive en otro sistema.
type UserRepository interface {
	FindByEmail(email string) (*entity.User, error)
	GetByID(id string) (*entity.User, error)
}
