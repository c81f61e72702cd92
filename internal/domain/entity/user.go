package entity

import "time"

// User representa un usuario del portal (pertenece a un Client).
// La gestión de cuentas vive fuera de este servicio; aquí solo se usa para
// login y para resolver el client_id del token.
type User struct {
	ID           string
	ClientID     string
	Email        string
	PasswordHash string // bcrypt, nunca plano después de persistir
	Name         string
	Role         string // admin, consulta
	Status       string // active, inactive
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
