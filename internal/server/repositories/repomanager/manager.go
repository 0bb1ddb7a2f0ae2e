package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/access"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// use the same constructors inside and outside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Versions(db dbx.DBTX) versions.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Access(db dbx.DBTX) access.Checker
}
