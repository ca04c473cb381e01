package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Producers() Producers
	Companies() Companies
	Collaborators() Collaborators
	Profiles() Profiles
	Throttles() Throttles
	AuditLog() AuditLog
}

type mngr struct {
	db            *bun.DB
	producers     Producers
	companies     Companies
	collaborators Collaborators
	profiles      Profiles
	throttles     Throttles
	auditLog      AuditLog
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		producers:     NewProducersRepository(db),
		companies:     NewCompaniesRepository(db),
		collaborators: NewCollaboratorsRepository(db),
		profiles:      NewProfilesRepository(db),
		throttles:     NewThrottlesRepository(db),
		auditLog:      NewAuditLogRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.producers == nil {
		return errors.New("repository producers should be initialized")
	}

	if m.companies == nil {
		return errors.New("repository companies should be initialized")
	}

	if m.collaborators == nil {
		return errors.New("repository collaborators should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.throttles == nil {
		return errors.New("repository throttles should be initialized")
	}

	if m.auditLog == nil {
		return errors.New("repository auditLog should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Producers() Producers {
	return m.producers
}

func (m mngr) Companies() Companies {
	return m.companies
}

func (m mngr) Collaborators() Collaborators {
	return m.collaborators
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Throttles() Throttles {
	return m.throttles
}

func (m mngr) AuditLog() AuditLog {
	return m.auditLog
}
