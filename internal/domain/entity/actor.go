package entity

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCandidate    Role = "candidate"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

type ActorKind int

const (
	ActorParty ActorKind = iota + 1
	ActorSystem
)

// Actor - закрытый вариант: либо участник с ролью, либо автоматическая система.
type Actor struct {
	kind   ActorKind
	userID uuid.UUID
	role   Role
}

func Party(userID uuid.UUID, role Role) Actor {
	return Actor{kind: ActorParty, userID: userID, role: role}
}

func System() Actor {
	return Actor{kind: ActorSystem}
}

func (a Actor) Kind() ActorKind { return a.kind }

func (a Actor) IsSystem() bool { return a.kind == ActorSystem }

func (a Actor) IsAdmin() bool { return a.kind == ActorParty && a.role == RoleAdmin }

// UserID возвращает идентификатор участника; для системы ok=false.
func (a Actor) UserID() (uuid.UUID, bool) {
	if a.kind != ActorParty {
		return uuid.Nil, false
	}
	return a.userID, true
}

func (a Actor) Role() Role {
	if a.kind == ActorSystem {
		return "system"
	}
	return a.role
}

// UserIDPtr удобен для nullable колонок аудита.
func (a Actor) UserIDPtr() *uuid.UUID {
	if id, ok := a.UserID(); ok {
		return &id
	}
	return nil
}

func (a Actor) String() string {
	switch a.kind {
	case ActorSystem:
		return "system"
	case ActorParty:
		return fmt.Sprintf("%s:%s", a.role, a.userID)
	default:
		return "unknown"
	}
}
